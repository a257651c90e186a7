package signing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/brizzai/postman/internal/config"
	"github.com/brizzai/postman/internal/httpcache"
	"github.com/brizzai/postman/internal/notify"
	"github.com/brizzai/postman/internal/requester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderSigner_Sign(t *testing.T) {
	tests := []struct {
		name       string
		authType   config.AuthType
		authConfig map[string]string
		wantErr    bool
		checkAuth  func(t *testing.T, req *http.Request)
	}{
		{
			name:     "Basic Auth",
			authType: config.AuthTypeBasic,
			authConfig: map[string]string{
				"username": "testuser",
				"password": "testpass",
			},
			checkAuth: func(t *testing.T, req *http.Request) {
				username, password, ok := req.BasicAuth()
				assert.True(t, ok)
				assert.Equal(t, "testuser", username)
				assert.Equal(t, "testpass", password)
			},
		},
		{
			name:       "Bearer Auth",
			authType:   config.AuthTypeBearer,
			authConfig: map[string]string{"token": "test-token"},
			checkAuth: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
			},
		},
		{
			name:     "API Key Auth",
			authType: config.AuthTypeAPIKey,
			authConfig: map[string]string{
				"key":    "test-key",
				"header": "X-Custom-Key",
			},
			checkAuth: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "test-key", req.Header.Get("X-Custom-Key"))
			},
		},
		{
			name:       "API Key default header",
			authType:   config.AuthTypeAPIKey,
			authConfig: map[string]string{"key": "k"},
			checkAuth: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "k", req.Header.Get("X-API-Key"))
			},
		},
		{
			name:     "OAuth2 is not a header signer",
			authType: config.AuthTypeOAuth2,
			wantErr:  true,
		},
		{
			name:     "Invalid Auth Type",
			authType: "invalid",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer, err := NewHeaderSigner(tt.authType, tt.authConfig)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "http://api.example.com", nil)
			require.NoError(t, signer.Sign(context.Background(), req))
			tt.checkAuth(t, req)
		})
	}
}

func TestRegistry_Sign(t *testing.T) {
	r := NewRegistry()
	r.Register("b", SignerFunc(func(_ context.Context, req *http.Request) error {
		req.Header.Set("X-Signed-By", "b")
		return nil
	}))
	r.Register("a", SignerFunc(func(context.Context, *http.Request) error { return nil }))

	assert.Equal(t, []string{"a", "b"}, r.IDs())

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com", nil)
	require.NoError(t, r.Sign(context.Background(), "b", req))
	assert.Equal(t, "b", req.Header.Get("X-Signed-By"))

	err := r.Sign(context.Background(), "missing", req)
	assert.ErrorIs(t, err, requester.ErrSignerNotRegistered)
}

func tokenServer(t *testing.T, wantGrant string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, wantGrant, r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "issued-" + wantGrant,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestNewRegistryFromConfig(t *testing.T) {
	ccServer, ccCalls := tokenServer(t, "client_credentials")
	refreshServer, _ := tokenServer(t, "refresh_token")

	cfg := &config.Config{
		Signers: map[string]config.SignerConfig{
			"static": {
				Type:       config.AuthTypeOAuth2,
				AuthConfig: map[string]string{"access_token": "static-token"},
			},
			"service": {
				Type:         config.AuthTypeOAuth2,
				ClientID:     "id",
				ClientSecret: "secret",
				TokenURL:     ccServer.URL,
			},
			"user": {
				Type:         config.AuthTypeOAuth2,
				ClientID:     "id",
				ClientSecret: "secret",
				TokenURL:     refreshServer.URL,
				AuthConfig:   map[string]string{"refresh_token": "r1"},
			},
			"legacy": {
				Type:       config.AuthTypeBearer,
				AuthConfig: map[string]string{"token": "legacy-token"},
			},
		},
	}

	registry, err := NewRegistryFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"legacy", "service", "static", "user"}, registry.IDs())

	tests := map[string]string{
		"static":  "Bearer static-token",
		"service": "Bearer issued-client_credentials",
		"user":    "Bearer issued-refresh_token",
		"legacy":  "Bearer legacy-token",
	}
	for id, want := range tests {
		t.Run(id, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://api.example.com", nil)
			require.NoError(t, registry.Sign(context.Background(), id, req))
			assert.Equal(t, want, req.Header.Get("Authorization"))
		})
	}

	// Tokens are reused until they expire
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com", nil)
	require.NoError(t, registry.Sign(context.Background(), "service", req))
	assert.Equal(t, int32(1), ccCalls.Load())
}

func TestNewRegistryFromConfig_Invalid(t *testing.T) {
	_, err := NewRegistryFromConfig(&config.Config{
		Signers: map[string]config.SignerConfig{
			"broken": {Type: config.AuthTypeOAuth2},
		},
	})
	assert.Error(t, err)
}

func TestOAuth2Signer_TokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	registry, err := NewRegistryFromConfig(&config.Config{
		Signers: map[string]config.SignerConfig{
			"service": {Type: config.AuthTypeOAuth2, ClientID: "id", TokenURL: server.URL},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com", nil)
	err = registry.Sign(context.Background(), "service", req)
	assert.Error(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		sc      config.SignerConfig
		want    string
		wantErr bool
	}{
		{
			name: "github preset",
			sc:   config.SignerConfig{Provider: "github"},
			want: "https://github.com/login/oauth/access_token",
		},
		{
			name: "provider names are case insensitive",
			sc:   config.SignerConfig{Provider: "Google"},
			want: "https://oauth2.googleapis.com/token",
		},
		{
			name: "token url overrides the preset",
			sc:   config.SignerConfig{Provider: "github", TokenURL: "https://ghe.example.com/token"},
			want: "https://ghe.example.com/token",
		},
		{
			name:    "unknown provider",
			sc:      config.SignerConfig{Provider: "myspace"},
			wantErr: true,
		},
		{
			name:    "no endpoint",
			sc:      config.SignerConfig{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			endpoint, err := resolveEndpoint(tt.sc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, endpoint.TokenURL)
		})
	}

	assert.Equal(t, []string{"github", "google"}, Providers())
}

type bodyStrategy struct {
	requester.BaseStrategy
	bodies *[]string
}

func (s bodyStrategy) OnSuccess(_ context.Context, resp *requester.Response) error {
	*s.bodies = append(*s.bodies, string(resp.Body))
	return nil
}

func TestCachedResponsesStayWithTheirSigner(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=300")
		_, _ = w.Write([]byte("secret-for-" + r.Header.Get("X-API-Key")))
	}))
	defer server.Close()

	registry, err := NewRegistryFromConfig(&config.Config{
		Signers: map[string]config.SignerConfig{
			"alice": {Type: config.AuthTypeAPIKey, AuthConfig: map[string]string{"key": "alice"}},
			"bob":   {Type: config.AuthTypeAPIKey, AuthConfig: map[string]string{"key": "bob"}},
		},
	})
	require.NoError(t, err)

	executor := requester.NewHTTPRequester(requester.HTTPRequesterParams{
		Sink:   notify.SinkFunc(func(context.Context, notify.Notification) {}),
		Signer: registry,
		Cache:  httpcache.NewMemoryStore(16),
	})

	var bodies []string
	cmd, err := requester.NewCommand(
		bodyStrategy{BaseStrategy: requester.BaseStrategy{Req: requester.Request{URL: server.URL, Signer: "alice"}}, bodies: &bodies},
		bodyStrategy{BaseStrategy: requester.BaseStrategy{Req: requester.Request{URL: server.URL, Signer: "bob"}}, bodies: &bodies},
	)
	require.NoError(t, err)
	require.NoError(t, executor.Execute(context.Background(), cmd))

	assert.Equal(t, []string{"secret-for-alice", "secret-for-bob"}, bodies)
}
