package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/httpx"
)

// Client writes companies, deals, line items and products to HubSpot CRM.
// Every request waits on a shared rate limiter and is retried on 429 and
// 5xx responses. It implements integration.CRMClient.
type Client struct {
	config     *Config
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      httpx.RetryPolicy
	logger     *zap.Logger
}

var _ integration.CRMClient = (*Client)(nil)

// NewClient creates a new HubSpot client with the given configuration
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RateLimitInterval > 0 {
		limit = rate.Every(config.RateLimitInterval)
	}

	retry := httpx.DefaultRetryPolicy(config.MaxRetries)
	retry.InitialInterval = config.RetryInterval

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: httpx.NewTransport(nil),
		},
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		logger:  logger.Named("hubspot"),
	}, nil
}

// ---------------------------------------------------------------------------
// CRMClient
// ---------------------------------------------------------------------------

// FindByNaturalKey returns the first record whose property equals value, nil
// when none. The looked-up property is always returned.
func (c *Client) FindByNaturalKey(ctx context.Context, objectType integration.ObjectType, property, value string, properties ...string) (*integration.CRMRecord, error) {
	if !objectType.IsValid() {
		return nil, fmt.Errorf("%w: unknown object type %q", integration.ErrCRMRequestFailed, objectType)
	}
	req := searchRequest{
		FilterGroups: []searchFilterGroup{{
			Filters: []searchFilter{{PropertyName: property, Operator: "EQ", Value: value}},
		}},
		Properties: append([]string{property}, properties...),
		Limit:      1,
	}

	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/"+objectType.String()+"/search", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return resp.Results[0].record(), nil
}

// Create creates a record with the given properties
func (c *Client) Create(ctx context.Context, objectType integration.ObjectType, properties any) (*integration.CRMRecord, error) {
	if !objectType.IsValid() {
		return nil, fmt.Errorf("%w: unknown object type %q", integration.ErrCRMRequestFailed, objectType)
	}
	var resp object
	if err := c.do(ctx, http.MethodPost, "/crm/v3/objects/"+objectType.String(), objectInput{Properties: properties}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: created %s has no id", integration.ErrCRMInvalidResponse, objectType)
	}
	c.logger.Debug("Created record", zap.String("object_type", objectType.String()), zap.String("id", resp.ID))
	return resp.record(), nil
}

// Update patches the properties of an existing record
func (c *Client) Update(ctx context.Context, objectType integration.ObjectType, id string, properties any) (*integration.CRMRecord, error) {
	if !objectType.IsValid() {
		return nil, fmt.Errorf("%w: unknown object type %q", integration.ErrCRMRequestFailed, objectType)
	}
	var resp object
	path := "/crm/v3/objects/" + objectType.String() + "/" + url.PathEscape(id)
	if err := c.do(ctx, http.MethodPatch, path, objectInput{Properties: properties}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = id
	}
	c.logger.Debug("Updated record", zap.String("object_type", objectType.String()), zap.String("id", id))
	return resp.record(), nil
}

// Associate creates a HubSpot-defined association. The v4 PUT is idempotent.
func (c *Client) Associate(ctx context.Context, from integration.ObjectType, fromID string, to integration.ObjectType, toID string, kind integration.AssociationKind) error {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s/%s",
		from, url.PathEscape(fromID), to, url.PathEscape(toID))
	body := []associationSpec{{AssociationCategory: "HUBSPOT_DEFINED", AssociationTypeID: int(kind)}}
	return c.do(ctx, http.MethodPut, path, body, nil)
}

// ---------------------------------------------------------------------------
// Account inspection
// ---------------------------------------------------------------------------

// Ping reads one company to check connectivity and the access token
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/crm/v3/objects/companies?limit=1", nil, nil)
}

// ListDealPipelines returns every deal pipeline with its stages
func (c *Client) ListDealPipelines(ctx context.Context) ([]Pipeline, error) {
	var resp pipelinesResponse
	if err := c.do(ctx, http.MethodGet, "/crm/v3/pipelines/deals", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// ListOwners returns every owner, following the paging cursor
func (c *Client) ListOwners(ctx context.Context) ([]Owner, error) {
	owners := make([]Owner, 0)
	after := ""
	for {
		query := url.Values{"limit": {"100"}}
		if after != "" {
			query.Set("after", after)
		}
		var resp ownersResponse
		if err := c.do(ctx, http.MethodGet, "/crm/v3/owners?"+query.Encode(), nil, &resp); err != nil {
			return nil, err
		}
		owners = append(owners, resp.Results...)
		if after = resp.nextAfter(); after == "" {
			return owners, nil
		}
	}
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("hubspot: failed to encode request: %w", err)
		}
	}

	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return httpx.Permanent(err)
		}
		return c.send(ctx, method, path, payload, out)
	}, func(err error, attempt int, wait time.Duration) {
		c.logger.Warn("HubSpot request retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := newRequest(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return httpx.Permanent(fmt.Errorf("hubspot: failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, err := httpx.ReadBody(resp)
	if err != nil {
		return fmt.Errorf("hubspot: failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return httpx.NewStatusError(resp, respBody)
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return httpx.Permanent(fmt.Errorf("%w: %v", integration.ErrCRMInvalidResponse, err))
	}
	return nil
}

// newRequest avoids passing a typed nil reader to http.NewRequestWithContext
func newRequest(ctx context.Context, method, rawURL string, body *bytes.Reader) (*http.Request, error) {
	if body == nil {
		return http.NewRequestWithContext(ctx, method, rawURL, nil)
	}
	return http.NewRequestWithContext(ctx, method, rawURL, body)
}

// classify maps a final request error onto the integration CRM errors
func classify(err error) error {
	if errors.Is(err, integration.ErrCRMInvalidResponse) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch code := httpx.StatusCode(err); {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", integration.ErrCRMRateLimited, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", integration.ErrCRMAuthFailed, err)
	case code != 0 && !httpx.IsRetryableStatus(code):
		return fmt.Errorf("%w: %w", integration.ErrCRMRequestFailed, err)
	default:
		return fmt.Errorf("%w: %w", integration.ErrCRMUnavailable, err)
	}
}
