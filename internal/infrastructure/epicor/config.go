package epicor

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds the Epicor REST v2 (OData v4) connection settings
type Config struct {
	// BaseURL is the server root, e.g. https://erp.example.com/ERP11PROD
	BaseURL string
	// Company is the Epicor company id placed in every OData path
	Company  string
	Username string
	Password string
	// APIKey is sent as x-api-key
	APIKey string
	// BatchSize is the $top page size
	BatchSize int
	// MaxRetries bounds retries of transport errors and 408/429/5xx
	MaxRetries int
	// RetryInterval is the first backoff delay
	RetryInterval      time.Duration
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Errors for Epicor configuration
var (
	ErrConfigMissingBaseURL     = errors.New("epicor: base url is required")
	ErrConfigInvalidBaseURL     = errors.New("epicor: base url must be an absolute http(s) url")
	ErrConfigMissingCompany     = errors.New("epicor: company is required")
	ErrConfigMissingCredentials = errors.New("epicor: api key or username/password is required")
)

const (
	defaultBatchSize     = 100
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
	defaultTimeout       = 30 * time.Second
)

// Validate checks required settings and fills defaults
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrConfigInvalidBaseURL
	}
	if c.Company == "" {
		return ErrConfigMissingCompany
	}
	if c.APIKey == "" && (c.Username == "" || c.Password == "") {
		return ErrConfigMissingCredentials
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return nil
}
