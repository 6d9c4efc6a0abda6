package k8s

import (
	"context"
	"errors"
	"fmt"
	"log"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/kubestellar/console-assistant/pkg/assistant"
)

const (
	AssistantGroup    = "console.kubestellar.io"
	AssistantVersion  = "v1alpha4"
	AssistantResource = "assistants"
	AssistantKind     = "Assistant"

	// DefaultNamespace is used when the Assistant resource carries no namespace
	DefaultNamespace = "default"

	authEmailKey       = "assistant-email"
	authTokenKey       = "assistant-token"
	legacyAuthEmailKey = "wisdom-email"
	legacyAuthTokenKey = "wisdom-token"
)

// AssistantGVR identifies the Assistant custom resource
var AssistantGVR = schema.GroupVersionResource{
	Group:    AssistantGroup,
	Version:  AssistantVersion,
	Resource: AssistantResource,
}

// ErrAssistantCount is returned when the cluster does not hold exactly one Assistant
var ErrAssistantCount = errors.New("expected there to be exactly one object of kind Assistant")

// GetAssistantConfig reads the cluster's single Assistant resource. The
// returned config's Namespace is where the backends' auth Secrets live.
func (c *Client) GetAssistantConfig(ctx context.Context) (*assistant.HostConfig, error) {
	dyn, err := c.GetDynamicClient()
	if err != nil {
		return nil, err
	}

	list, err := dyn.Resource(AssistantGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get the assistant: %w", err)
	}
	if len(list.Items) != 1 {
		return nil, fmt.Errorf("%w. actual: %d", ErrAssistantCount, len(list.Items))
	}

	return hostConfigFromObject(&list.Items[0])
}

func hostConfigFromObject(obj *unstructured.Unstructured) (*assistant.HostConfig, error) {
	spec, found, err := unstructured.NestedMap(obj.Object, "spec")
	if err != nil {
		return nil, fmt.Errorf("invalid spec on assistant %s: %w", obj.GetName(), err)
	}

	var hc assistant.HostConfig
	if found {
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(spec, &hc); err != nil {
			return nil, fmt.Errorf("failed to parse assistant %s: %w", obj.GetName(), err)
		}
	}

	hc.Namespace = obj.GetNamespace()
	if hc.Namespace == "" {
		hc.Namespace = DefaultNamespace
	}
	log.Printf("[k8s] Loaded assistant %s/%s with %d backends", hc.Namespace, obj.GetName(), len(hc.Backends))
	return &hc, nil
}

// GetAuthCreds reads a backend's credentials from a Secret
func (c *Client) GetAuthCreds(ctx context.Context, namespace, name string) (*assistant.AuthCreds, error) {
	client, err := c.GetClient()
	if err != nil {
		return nil, err
	}

	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get the assistant auth secret %s/%s: %w", namespace, name, err)
	}
	return credsFromSecret(secret)
}

func credsFromSecret(secret *corev1.Secret) (*assistant.AuthCreds, error) {
	email, ok := secret.Data[authEmailKey]
	if !ok {
		email = secret.Data[legacyAuthEmailKey]
	}
	token, ok := secret.Data[authTokenKey]
	if !ok {
		token, ok = secret.Data[legacyAuthTokenKey]
	}
	if !ok {
		return nil, fmt.Errorf("secret %s/%s has no %s key", secret.Namespace, secret.Name, authTokenKey)
	}
	return &assistant.AuthCreds{Email: string(email), Token: string(token)}, nil
}

// CredentialResolver returns a resolver that reads backend Secrets from namespace
func (c *Client) CredentialResolver(namespace string) assistant.CredentialResolver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return assistant.CredentialResolverFunc(func(ctx context.Context, desc assistant.BackendDescriptor) (*assistant.AuthCreds, error) {
		if desc.Auth == nil || desc.Auth.SecretName == "" {
			return nil, nil
		}
		return c.GetAuthCreds(ctx, namespace, desc.Auth.SecretName)
	})
}
