package k8s

import (
	"context"
	"fmt"
	"log"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// AssistantCRDName is the metadata.name of the Assistant CRD
const AssistantCRDName = AssistantResource + "." + AssistantGroup

// AssistantCRD returns the CustomResourceDefinition of the Assistant kind
func AssistantCRD() *apiextensionsv1.CustomResourceDefinition {
	minOne := float64(1)
	str := apiextensionsv1.JSONSchemaProps{Type: "string"}

	backend := apiextensionsv1.JSONSchemaProps{
		Type:     "object",
		Required: []string{"id", "name", "discoveryEndpoint"},
		Properties: map[string]apiextensionsv1.JSONSchemaProps{
			"id":                str,
			"name":              str,
			"discoveryEndpoint": str,
			"defaultModelId":    str,
			"auth": {
				Type:     "object",
				Required: []string{"secretName"},
				Properties: map[string]apiextensionsv1.JSONSchemaProps{
					"secretName": str,
				},
			},
		},
	}

	spec := apiextensionsv1.JSONSchemaProps{
		Type:     "object",
		Required: []string{"backends"},
		Properties: map[string]apiextensionsv1.JSONSchemaProps{
			"backends": {
				Type:  "array",
				Items: &apiextensionsv1.JSONSchemaPropsOrArray{Schema: &backend},
			},
			"defaultBackendId":        str,
			"defaultTaskTitle":        str,
			"hideAdvancedTab":         {Type: "boolean"},
			"maxPollAttempts":         {Type: "integer", Minimum: &minOne},
			"timeBetweenPollAttempts": {Type: "integer", Minimum: &minOne},
		},
	}

	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{Name: AssistantCRDName},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: AssistantGroup,
			Scope: apiextensionsv1.NamespaceScoped,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:   AssistantResource,
				Singular: "assistant",
				Kind:     AssistantKind,
				ListKind: AssistantKind + "List",
			},
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{{
				Name:    AssistantVersion,
				Served:  true,
				Storage: true,
				Schema: &apiextensionsv1.CustomResourceValidation{
					OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
						Type: "object",
						Properties: map[string]apiextensionsv1.JSONSchemaProps{
							"spec": spec,
						},
					},
				},
			}},
		},
	}
}

// EnsureCRD installs the Assistant CRD if it is missing. It reports whether
// the CRD was created.
func (c *Client) EnsureCRD(ctx context.Context) (bool, error) {
	client, err := c.GetAPIExtensionsClient()
	if err != nil {
		return false, err
	}

	crds := client.ApiextensionsV1().CustomResourceDefinitions()
	_, err = crds.Get(ctx, AssistantCRDName, metav1.GetOptions{})
	if err == nil {
		return false, nil
	}
	if !apierrors.IsNotFound(err) {
		return false, fmt.Errorf("failed to get CRD %s: %w", AssistantCRDName, err)
	}

	if _, err := crds.Create(ctx, AssistantCRD(), metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create CRD %s: %w", AssistantCRDName, err)
	}
	log.Printf("[k8s] Created CRD %s", AssistantCRDName)
	return true, nil
}
