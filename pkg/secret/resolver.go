// Package secret resolves SecretSpecs to plaintext values without ever
// holding more than one secret's worth of plaintext at a time.
package secret

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

// Resolver is the capability external collaborators (endpoint URLs, webhook
// secrets, trigger credentials) depend on.
type Resolver interface {
	Resolve(ctx context.Context, spec model.SecretSpec) (string, error)
}

// hcpEnv holds HCP_CLIENT_ID / HCP_CLIENT_SECRET / HCP_ORG_ID /
// HCP_PROJECT_ID / HCP_APP_NAME, read lazily by hcpClientLocked the first
// time an HCP secret is resolved.
type hcpEnv struct {
	ClientID, ClientSecret, OrgID, ProjectID, AppName string
}

func hcpEnvFromOS() hcpEnv {
	return hcpEnv{
		ClientID:     os.Getenv("HCP_CLIENT_ID"),
		ClientSecret: os.Getenv("HCP_CLIENT_SECRET"),
		OrgID:        os.Getenv("HCP_ORG_ID"),
		ProjectID:    os.Getenv("HCP_PROJECT_ID"),
		AppName:      os.Getenv("HCP_APP_NAME"),
	}
}

// DefaultResolver implements Resolver over Plain/Environment/HashicorpCloudVault.
type DefaultResolver struct {
	logger *zap.Logger

	mu        sync.Mutex
	hcpClient *hcpVaultClient // lazily initialized on first HCP resolution
}

func NewDefaultResolver(logger *zap.Logger) *DefaultResolver {
	return &DefaultResolver{logger: logger}
}

func (r *DefaultResolver) Resolve(ctx context.Context, spec model.SecretSpec) (string, error) {
	switch spec.Kind {
	case model.SecretKindPlain:
		return spec.Value, nil
	case model.SecretKindEnvironment:
		v, ok := os.LookupEnv(spec.Value)
		if !ok {
			return "", fmt.Errorf("secret: environment variable %q is not set", spec.Value)
		}
		return v, nil
	case model.SecretKindHCPVault:
		client, err := r.hcpClientLocked()
		if err != nil {
			return "", err
		}
		return client.FetchSecret(ctx, spec.Value)
	default:
		return "", fmt.Errorf("secret: unsupported kind %q", spec.Kind)
	}
}

func (r *DefaultResolver) hcpClientLocked() (*hcpVaultClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hcpClient != nil {
		return r.hcpClient, nil
	}
	env := hcpEnvFromOS()
	if env.ClientID == "" || env.ClientSecret == "" || env.OrgID == "" || env.ProjectID == "" || env.AppName == "" {
		return nil, fmt.Errorf("secret: HCP_CLIENT_ID/HCP_CLIENT_SECRET/HCP_ORG_ID/HCP_PROJECT_ID/HCP_APP_NAME must all be set to resolve HashicorpCloudVault secrets")
	}
	r.hcpClient = newHCPVaultClient(env, r.logger)
	return r.hcpClient, nil
}
