// Package oura fetches daily collections from the Oura v2 user collection API
// and flattens them into date-keyed record sets.
package oura

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"example.com/wellness/internal/dataset"
)

// Known daily collection endpoints, in the order their fields take precedence.
const (
	EndpointActivity  = "daily_activity"
	EndpointSleep     = "daily_sleep"
	EndpointReadiness = "daily_readiness"
)

// DefaultEndpoints is the canonical merge order.
var DefaultEndpoints = []string{EndpointActivity, EndpointSleep, EndpointReadiness}

const (
	collectionPath = "/v2/usercollection/"
	maxPages       = 50
	maxErrorBody   = 512
)

// ClientConfig carries connection settings for the API.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client retrieves time-windowed collections. It never retries; failures are
// returned to the caller as *EndpointFetchError.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient constructs a Client.
func NewClient(cfg ClientConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json")

	c := &Client{
		http:   httpClient,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch issues the GET for one endpoint and window and returns the flattened rows.
func (c *Client) Fetch(ctx context.Context, endpoint string, window dataset.Window) (dataset.RecordSet, error) {
	set := dataset.RecordSet{Endpoint: endpoint}
	if err := window.Validate(); err != nil {
		return set, &EndpointFetchError{Endpoint: endpoint, Err: fmt.Errorf("%w: %v", ErrInvalidWindow, err)}
	}

	params := map[string]string{
		"start_date": window.Start.Format(dataset.DayLayout),
		"end_date":   window.End.Format(dataset.DayLayout),
	}

	for page := 0; ; page++ {
		if page >= maxPages {
			return set, &EndpointFetchError{Endpoint: endpoint, Err: fmt.Errorf("pagination exceeded %d pages", maxPages)}
		}

		body, err := c.get(ctx, endpoint, params)
		if err != nil {
			return set, err
		}

		rows, next, err := decodeCollection(body)
		if err != nil {
			return set, &EndpointFetchError{Endpoint: endpoint, StatusCode: http.StatusOK, Body: truncate(body), Err: err}
		}
		for _, raw := range rows {
			row, ok := c.toRow(endpoint, raw)
			if ok {
				set.Rows = append(set.Rows, row)
			}
		}

		if next == "" {
			break
		}
		params["next_token"] = next
	}

	c.logger.Debug("fetched collection",
		zap.String("endpoint", endpoint),
		zap.String("window", window.String()),
		zap.Int("rows", len(set.Rows)),
	)
	return set, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(collectionPath + endpoint)
	if err != nil {
		fetchErr := &EndpointFetchError{Endpoint: endpoint, Err: err}
		if resp != nil {
			fetchErr.StatusCode = resp.StatusCode()
		}
		return nil, fetchErr
	}
	if !resp.IsSuccess() {
		return nil, &EndpointFetchError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       truncate(resp.Body()),
		}
	}
	return resp.Body(), nil
}

func (c *Client) toRow(endpoint string, raw map[string]any) (dataset.Row, bool) {
	dayValue, _ := raw["day"].(string)
	day, err := dataset.ParseDay(dayValue)
	if err != nil {
		c.logger.Warn("skipping record without a valid day",
			zap.String("endpoint", endpoint),
			zap.Any("day", raw["day"]),
		)
		return dataset.Row{}, false
	}
	delete(raw, "day")
	return dataset.Row{Day: day, Fields: raw}, true
}

// decodeCollection validates the body shape and flattens each element of "data".
func decodeCollection(body []byte) ([]map[string]any, string, error) {
	if !gjson.ValidBytes(body) {
		return nil, "", errors.New("response body is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	data := doc.Get("data")
	if !data.IsArray() {
		return nil, "", errors.New(`response body has no "data" array`)
	}

	var rows []map[string]any
	var elemErr error
	data.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			elemErr = fmt.Errorf("data element is %s, want object", item.Type)
			return false
		}
		flat := make(map[string]any)
		flatten("", item, flat)
		rows = append(rows, flat)
		return true
	})
	if elemErr != nil {
		return nil, "", elemErr
	}

	next := doc.Get("next_token")
	if next.Type == gjson.Null {
		return rows, "", nil
	}
	return rows, next.String(), nil
}

// flatten writes scalar leaves of obj into out using dot-qualified names.
// Arrays are kept whole as []any.
func flatten(prefix string, obj gjson.Result, out map[string]any) {
	obj.ForEach(func(key, value gjson.Result) bool {
		name := prefix + key.String()
		if value.IsObject() {
			flatten(name+".", value, out)
			return true
		}
		out[name] = value.Value()
		return true
	})
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
