// Package signing resolves named signers and applies their credentials to
// outgoing requests.
package signing

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/brizzai/postman/internal/config"
	"github.com/brizzai/postman/internal/logger"
	"github.com/brizzai/postman/internal/requester"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Registry maps signer ids to signers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

func NewRegistry() *Registry {
	return &Registry{signers: make(map[string]Signer)}
}

// Register adds or replaces the signer for id
func (r *Registry) Register(id string, s Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[id] = s
}

// Lookup returns the signer registered for id
func (r *Registry) Lookup(id string) (Signer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[id]
	return s, ok
}

// IDs returns the registered signer ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.signers))
	for id := range r.signers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sign signs req in place with the signer registered for id
func (r *Registry) Sign(ctx context.Context, id string, req *http.Request) error {
	s, ok := r.Lookup(id)
	if !ok {
		return requester.ErrSignerNotRegistered
	}
	return s.Sign(ctx, req)
}

// NewRegistryFromConfig builds a registry holding every configured signer
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	r := NewRegistry()
	for id, sc := range cfg.Signers {
		s, err := newSigner(sc)
		if err != nil {
			return nil, fmt.Errorf("signer %s: %w", id, err)
		}
		r.Register(id, s)
		logger.Debug("Registered signer", zap.String("signer", id), zap.String("type", string(sc.Type)))
	}
	return r, nil
}

func newSigner(sc config.SignerConfig) (Signer, error) {
	if sc.Type != config.AuthTypeOAuth2 {
		return NewHeaderSigner(sc.Type, sc.AuthConfig)
	}

	// Token sources outlive any single request, so they get a background context.
	ctx := context.Background()
	if token := sc.AuthConfig["access_token"]; token != "" {
		return NewOAuth2Signer(oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		})), nil
	}

	endpoint, err := resolveEndpoint(sc)
	if err != nil {
		return nil, err
	}

	if refresh := sc.AuthConfig["refresh_token"]; refresh != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       sc.Scopes,
		}
		return NewOAuth2Signer(oauthCfg.TokenSource(ctx, &oauth2.Token{
			RefreshToken: refresh,
		})), nil
	}

	ccCfg := &clientcredentials.Config{
		ClientID:     sc.ClientID,
		ClientSecret: sc.ClientSecret,
		TokenURL:     endpoint.TokenURL,
		Scopes:       sc.Scopes,
		AuthStyle:    endpoint.AuthStyle,
	}
	return NewOAuth2Signer(ccCfg.TokenSource(ctx)), nil
}

// Module provides the registry as the executor's signing service
var Module = fx.Module("signing",
	fx.Provide(
		fx.Annotate(
			NewRegistryFromConfig,
			fx.As(fx.Self()),
			fx.As(new(requester.Signer)),
		),
	),
)
