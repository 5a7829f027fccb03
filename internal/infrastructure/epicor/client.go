package epicor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/crmsync/internal/domain/integration"
	"github.com/erp/crmsync/internal/infrastructure/httpx"
)

// Client reads customers, quotes and sales orders from the Epicor REST v2
// OData API. It implements integration.SourceClient.
type Client struct {
	config     *Config
	httpClient *http.Client
	retry      httpx.RetryPolicy
	logger     *zap.Logger
}

var _ integration.SourceClient = (*Client)(nil)

// NewClient creates a new Epicor client with the given configuration
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if config.InsecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	retry := httpx.DefaultRetryPolicy(config.MaxRetries)
	retry.InitialInterval = config.RetryInterval

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: httpx.NewTransport(base),
		},
		retry:  retry,
		logger: logger.Named("epicor"),
	}, nil
}

// ---------------------------------------------------------------------------
// SourceClient
// ---------------------------------------------------------------------------

// FetchCustomers returns all customers matching filter
func (c *Client) FetchCustomers(ctx context.Context, filter string) ([]integration.Customer, error) {
	return fetchAll[integration.Customer](ctx, c, Query{
		Service:   ServiceCustomer,
		EntitySet: EntitySetCustomers,
		Filter:    filter,
	})
}

// FetchQuotes returns all quotes matching filter with their QuoteDtls
func (c *Client) FetchQuotes(ctx context.Context, filter string) ([]integration.Quote, error) {
	return fetchAll[integration.Quote](ctx, c, Query{
		Service:   ServiceQuote,
		EntitySet: EntitySetQuotes,
		Filter:    filter,
		Expand:    ExpandQuoteLines,
	})
}

// FetchOrders returns all sales orders matching filter with their OrderDtls
func (c *Client) FetchOrders(ctx context.Context, filter string) ([]integration.Order, error) {
	return fetchAll[integration.Order](ctx, c, Query{
		Service:   ServiceSalesOrder,
		EntitySet: EntitySetSalesOrders,
		Filter:    filter,
		Expand:    ExpandOrderLines,
	})
}

// GetOrderByQuote returns the sales order created from a quote, nil when none
func (c *Client) GetOrderByQuote(ctx context.Context, quoteNum int64) (*integration.Order, error) {
	orders, err := fetchAll[integration.Order](ctx, c, Query{
		Service:   ServiceSalesOrder,
		EntitySet: EntitySetSalesOrders,
		Filter:    orderByQuoteFilter(quoteNum),
		Expand:    ExpandOrderLines,
		OrderBy:   "OrderNum",
		Top:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

// FetchSalesReps returns every sales rep ordered by code
func (c *Client) FetchSalesReps(ctx context.Context) ([]SalesRep, error) {
	return fetchAll[SalesRep](ctx, c, Query{
		Service:   ServiceSalesRep,
		EntitySet: EntitySetSalesReps,
		Select:    "SalesRepCode,Name,EMailAddress,RoleCode",
		OrderBy:   "SalesRepCode",
	})
}

// Ping reads one customer to check connectivity and credentials
func (c *Client) Ping(ctx context.Context) error {
	_, err := fetchAll[json.RawMessage](ctx, c, Query{
		Service:   ServiceCustomer,
		EntitySet: EntitySetCustomers,
		Select:    "CustNum",
		Top:       1,
	})
	return err
}

// ---------------------------------------------------------------------------
// Paging
// ---------------------------------------------------------------------------

// fetchAll pages through a collection with $top/$skip. Paging stops at an
// empty page, or at a short page that carries no @odata.nextLink.
func fetchAll[T any](ctx context.Context, c *Client, q Query) ([]T, error) {
	size := c.config.BatchSize
	single := q.Top > 0
	if single {
		size = q.Top
	}

	records := make([]T, 0)
	for skip := 0; ; {
		var p page[T]
		if err := c.get(ctx, c.pageURL(q, size, skip), &p); err != nil {
			return nil, err
		}
		records = append(records, p.Value...)
		c.logger.Debug("Fetched page",
			zap.String("entity_set", q.EntitySet),
			zap.Int("skip", skip),
			zap.Int("count", len(p.Value)),
			zap.Int("total", len(records)),
		)

		if single || len(p.Value) == 0 {
			break
		}
		if len(p.Value) < size && p.NextLink == "" {
			break
		}
		skip += len(p.Value)
	}

	c.logger.Info("Fetched records",
		zap.String("entity_set", q.EntitySet),
		zap.String("filter", q.Filter),
		zap.Int("count", len(records)),
	)
	return records, nil
}

// pageURL builds {base}/api/v2/odata/{company}/{service}/{entitySet}?...
func (c *Client) pageURL(q Query, top, skip int) string {
	var b strings.Builder
	b.WriteString(c.config.BaseURL)
	b.WriteString("/api/v2/odata/")
	b.WriteString(url.PathEscape(c.config.Company))
	b.WriteString("/")
	b.WriteString(q.Service)
	b.WriteString("/")
	b.WriteString(q.EntitySet)

	params := []struct{ key, value string }{
		{"$filter", q.Filter},
		{"$expand", q.Expand},
		{"$select", q.Select},
		{"$orderby", q.OrderBy},
		{"$top", strconv.Itoa(top)},
		{"$skip", strconv.Itoa(skip)},
	}
	sep := "?"
	for _, p := range params {
		if p.value == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(p.key)
		b.WriteString("=")
		b.WriteString(escapeQueryValue(p.value))
		sep = "&"
	}
	return b.String()
}

// escapeQueryValue percent-encodes an OData expression, spaces as %20
func escapeQueryValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// ---------------------------------------------------------------------------
// HTTP
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.doGet(ctx, rawURL, out)
	}, func(err error, attempt int, wait time.Duration) {
		c.logger.Warn("Epicor request retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", c.config.MaxRetries),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return httpx.Permanent(fmt.Errorf("epicor: failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}
	if c.config.APIKey != "" {
		req.Header.Set("x-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, err := httpx.ReadBody(resp)
	if err != nil {
		return fmt.Errorf("epicor: failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return httpx.NewStatusError(resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return httpx.Permanent(fmt.Errorf("%w: %v", integration.ErrSourceInvalidResponse, err))
	}
	return nil
}

// classify maps a final request error onto the integration source errors
func classify(err error) error {
	if errors.Is(err, integration.ErrSourceInvalidResponse) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch code := httpx.StatusCode(err); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", integration.ErrSourceAuthFailed, err)
	case code != 0 && !httpx.IsRetryableStatus(code):
		return fmt.Errorf("%w: %w", integration.ErrSourceRequestFailed, err)
	default:
		return fmt.Errorf("%w: %w", integration.ErrSourceUnavailable, err)
	}
}
