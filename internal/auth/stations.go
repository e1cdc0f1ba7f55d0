// Package auth loads the external-station auth configuration and
// obtains the short-lived bearer tokens used to read station assets.
package auth

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"
)

// StationConfig describes how to obtain a token for one station.
type StationConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// ExternalAuthConfig maps station identifiers to their token
// endpoints. It is loaded once per staging request from the file
// named by RSPY_EXTERNAL_AUTH_CONFIG.
type ExternalAuthConfig struct {
	Stations map[string]StationConfig `yaml:"stations"`
}

// StationNotFoundError reports a station id absent from the config.
type StationNotFoundError struct {
	Station string
}

func (e *StationNotFoundError) Error() string {
	return fmt.Sprintf("station %q not found in external auth configuration", e.Station)
}

// LoadExternalAuthConfig reads and validates the station auth file.
// A missing or malformed file is a configuration error and fails
// fast.
func LoadExternalAuthConfig(path string) (*ExternalAuthConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read external auth config %s: %w", path, err)
	}

	var cfg ExternalAuthConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse external auth config %s: %w", path, err)
	}

	for name, station := range cfg.Stations {
		if station.TokenURL == "" {
			return nil, fmt.Errorf("station %q: token_url must be set", name)
		}
		if station.ClientID == "" || station.ClientSecret == "" {
			return nil, fmt.Errorf("station %q: client credentials must be set", name)
		}
	}
	return &cfg, nil
}

// StationToken fetches a bearer token for the station via the OAuth2
// client-credentials flow.
func (c *ExternalAuthConfig) StationToken(ctx context.Context, station string) (string, error) {
	sc, ok := c.Stations[station]
	if !ok {
		return "", &StationNotFoundError{Station: station}
	}

	conf := &clientcredentials.Config{
		ClientID:     sc.ClientID,
		ClientSecret: sc.ClientSecret,
		TokenURL:     sc.TokenURL,
		Scopes:       sc.Scopes,
	}
	token, err := conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token for station %q: %w", station, err)
	}
	return token.AccessToken, nil
}
