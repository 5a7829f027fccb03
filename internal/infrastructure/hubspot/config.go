package hubspot

import (
	"errors"
	"strings"
	"time"
)

// DefaultBaseURL is the public HubSpot API endpoint
const DefaultBaseURL = "https://api.hubapi.com"

// Config holds the HubSpot private app connection settings
type Config struct {
	// APIKey is the private app access token sent as a bearer token
	APIKey  string
	BaseURL string
	// RateLimitInterval is the minimum spacing between requests. HubSpot
	// allows 100 requests per 10 seconds for private apps.
	RateLimitInterval time.Duration
	MaxRetries        int
	RetryInterval     time.Duration
	Timeout           time.Duration
}

// Errors for HubSpot configuration
var ErrConfigMissingAPIKey = errors.New("hubspot: api key is required")

// Validate checks required settings and fills defaults
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.RateLimitInterval < 0 {
		c.RateLimitInterval = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}
