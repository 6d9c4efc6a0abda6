package assistant

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// CredentialResolver looks up the credentials for a backend descriptor.
// It returns nil creds when the descriptor has no auth reference.
type CredentialResolver interface {
	ResolveCreds(ctx context.Context, desc BackendDescriptor) (*AuthCreds, error)
}

// CredentialResolverFunc adapts a function to CredentialResolver
type CredentialResolverFunc func(ctx context.Context, desc BackendDescriptor) (*AuthCreds, error)

func (f CredentialResolverFunc) ResolveCreds(ctx context.Context, desc BackendDescriptor) (*AuthCreds, error) {
	return f(ctx, desc)
}

// BackendObserver is notified as each backend settles during DiscoverAll.
// Calls arrive from multiple goroutines.
type BackendObserver interface {
	OnBackendDiscovered(b *Backend)
	OnBackendFailed(desc BackendDescriptor, err error)
}

// DiscoveryResult collects the outcome of a discovery fan-out
type DiscoveryResult struct {
	// Backends holds the successfully discovered backends in descriptor order
	Backends []*Backend
	// Errors maps backend id to its discovery failure
	Errors map[string]error
}

// DiscoverAll discovers every descriptor concurrently. A failing backend
// never cancels or hides the others: all requests settle and only the
// successes end up in Backends.
func (c *Client) DiscoverAll(ctx context.Context, descs []BackendDescriptor, resolver CredentialResolver, observer BackendObserver) DiscoveryResult {
	results := make([]*Backend, len(descs))
	errs := make([]error, len(descs))

	var wg sync.WaitGroup
	for i, desc := range descs {
		wg.Add(1)
		go func(i int, desc BackendDescriptor) {
			defer wg.Done()

			b, err := c.discoverOne(ctx, desc, resolver)
			if err != nil {
				log.Printf("[discovery] failed to get the assistant backend %s: %v", desc.ID, err)
				errs[i] = err
				if observer != nil {
					observer.OnBackendFailed(desc, err)
				}
				return
			}

			log.Printf("[discovery] found backend %s (%d models)", b.ID, len(b.Manifest.Models))
			results[i] = b
			if observer != nil {
				observer.OnBackendDiscovered(b)
			}
		}(i, desc)
	}
	wg.Wait()

	out := DiscoveryResult{Errors: make(map[string]error)}
	for i, b := range results {
		if b != nil {
			out.Backends = append(out.Backends, b)
			continue
		}
		out.Errors[descs[i].ID] = errs[i]
	}
	return out
}

func (c *Client) discoverOne(ctx context.Context, desc BackendDescriptor, resolver CredentialResolver) (*Backend, error) {
	var creds *AuthCreds
	if desc.Auth != nil && resolver != nil {
		var err error
		creds, err = resolver.ResolveCreds(ctx, desc)
		if err != nil {
			discoveryTotal.WithLabelValues(desc.ID, "error").Inc()
			return nil, &DiscoveryError{
				BackendID: desc.ID,
				Endpoint:  desc.DiscoveryEndpoint,
				Err:       fmt.Errorf("failed to get the auth secret %s: %w", desc.Auth.SecretName, err),
			}
		}
	}
	return c.Discover(ctx, desc, creds)
}
