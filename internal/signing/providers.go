package signing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brizzai/postman/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// providerEndpoints are the token endpoints of well-known OAuth providers
var providerEndpoints = map[string]oauth2.Endpoint{
	"github": github.Endpoint,
	"google": google.Endpoint,
}

// Providers returns the names accepted in a signer's provider field
func Providers() []string {
	names := make([]string, 0, len(providerEndpoints))
	for name := range providerEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveEndpoint returns the token endpoint of sc. An explicit token_url
// overrides the provider preset.
func resolveEndpoint(sc config.SignerConfig) (oauth2.Endpoint, error) {
	var endpoint oauth2.Endpoint
	if sc.Provider != "" {
		preset, ok := providerEndpoints[strings.ToLower(sc.Provider)]
		if !ok {
			return oauth2.Endpoint{}, fmt.Errorf("unsupported oauth2 provider: %s (supported: %s)",
				sc.Provider, strings.Join(Providers(), ", "))
		}
		endpoint = preset
	}
	if sc.TokenURL != "" {
		endpoint.TokenURL = sc.TokenURL
	}
	if endpoint.TokenURL == "" {
		return oauth2.Endpoint{}, fmt.Errorf("oauth2 requires auth_config.access_token, token_url or provider")
	}
	return endpoint, nil
}
