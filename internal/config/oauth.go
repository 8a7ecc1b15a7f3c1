package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"slices"
)

// OAuthClientConfig is the Google OAuth desktop client file downloaded from
// the cloud console. Only the spreadsheets need it.
type OAuthClientConfig struct {
	Installed OAuthInstalled `json:"installed" validate:"required"`
}

// OAuthInstalled represents the installed section of OAuth config
type OAuthInstalled struct {
	ClientID                string   `json:"client_id" validate:"required"`
	ProjectID               string   `json:"project_id" validate:"required"`
	AuthURI                 string   `json:"auth_uri" validate:"required,url"`
	TokenURI                string   `json:"token_uri" validate:"required,url"`
	AuthProviderX509CertURL string   `json:"auth_provider_x509_cert_url" validate:"required,url"`
	ClientSecret            string   `json:"client_secret" validate:"required"`
	RedirectURIs            []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
}

// LoadOAuthClient loads the client named by oauthClientFile, or else
// oauthClient.<env>.json from the current or home directory
func LoadOAuthClient(cfg *Config, env string) (*OAuthClientConfig, error) {
	if cfg != nil && cfg.OAuthClientFile != "" {
		return LoadOAuthClientFromPath(cfg.OAuthClientFile)
	}

	name := "oauthClient.json"
	if env != "" {
		name = "oauthClient." + env + ".json"
	}
	path, err := findFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to find oauth client file: %w", err)
	}
	return LoadOAuthClientFromPath(path)
}

// LoadOAuthClientFromPath loads and validates the OAuth client configuration from a specific path
func LoadOAuthClientFromPath(path string) (*OAuthClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth client file: %w", err)
	}

	var oauthCfg OAuthClientConfig
	if err := json.Unmarshal(data, &oauthCfg); err != nil {
		return nil, fmt.Errorf("failed to parse oauth client file: %w", err)
	}

	if err := validate.Struct(&oauthCfg); err != nil {
		return nil, fmt.Errorf("oauth client validation failed: %w", err)
	}

	// Consent is completed by a callback server on this machine
	if !slices.ContainsFunc(oauthCfg.Installed.RedirectURIs, isLoopback) {
		return nil, fmt.Errorf("oauth client validation failed: no localhost redirect uri, download a desktop client")
	}

	return &oauthCfg, nil
}

func isLoopback(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "http" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
