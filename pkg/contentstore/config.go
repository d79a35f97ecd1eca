package contentstore

import (
	"fmt"
	"strings"
)

type Config struct {
	// GatewayURL is the read gateway base, e.g. https://gateway.pinata.cloud.
	GatewayURL string
	// APIKey is the bearer token for upload and file-management calls.
	APIKey     string
	UploadURL  string
	APIBaseURL string
}

func NewConfig(gatewayURL string, apiKey string) *Config {
	return &Config{
		GatewayURL: gatewayURL,
		APIKey:     apiKey,
		UploadURL:  "https://uploads.pinata.cloud/v3/files",
		APIBaseURL: "https://api.pinata.cloud/v3/files",
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.GatewayURL) == "" {
		return fmt.Errorf("GatewayURL is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("APIKey is required")
	}
	if strings.TrimSpace(c.UploadURL) == "" {
		return fmt.Errorf("UploadURL is required")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return fmt.Errorf("APIBaseURL is required")
	}
	return nil
}
