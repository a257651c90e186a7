package signing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brizzai/postman/internal/config"
	"golang.org/x/oauth2"
)

// Signer applies credentials to an outgoing request
type Signer interface {
	Sign(ctx context.Context, req *http.Request) error
}

// SignerFunc adapts a function to a Signer
type SignerFunc func(ctx context.Context, req *http.Request) error

func (f SignerFunc) Sign(ctx context.Context, req *http.Request) error { return f(ctx, req) }

// HeaderSigner applies static credentials of one AuthType
type HeaderSigner struct {
	authType   config.AuthType
	authConfig map[string]string
}

// NewHeaderSigner creates a signer for the basic, bearer and api_key auth types
func NewHeaderSigner(authType config.AuthType, authConfig map[string]string) (*HeaderSigner, error) {
	switch authType {
	case config.AuthTypeBasic, config.AuthTypeBearer, config.AuthTypeAPIKey:
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", authType)
	}
	return &HeaderSigner{authType: authType, authConfig: authConfig}, nil
}

func (s *HeaderSigner) Sign(_ context.Context, req *http.Request) error {
	switch s.authType {
	case config.AuthTypeBasic:
		req.SetBasicAuth(s.authConfig["username"], s.authConfig["password"])
	case config.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+s.authConfig["token"])
	case config.AuthTypeAPIKey:
		header := s.authConfig["header"]
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, s.authConfig["key"])
	}
	return nil
}

// OAuth2Signer signs requests with tokens from an oauth2.TokenSource.
// Token refresh is left to the source.
type OAuth2Signer struct {
	source oauth2.TokenSource
}

func NewOAuth2Signer(source oauth2.TokenSource) *OAuth2Signer {
	return &OAuth2Signer{source: source}
}

func (s *OAuth2Signer) Sign(_ context.Context, req *http.Request) error {
	token, err := s.source.Token()
	if err != nil {
		return fmt.Errorf("failed to obtain oauth2 token: %w", err)
	}
	if !token.Valid() {
		return fmt.Errorf("oauth2 token is invalid or expired")
	}
	token.SetAuthHeader(req)
	return nil
}
