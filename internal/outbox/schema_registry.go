package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrSubjectNotFound is returned when the registry has no versions for a subject.
var ErrSubjectNotFound = errors.New("schema subject not found")

const schemaRegistryContentType = "application/vnd.schemaregistry.v1+json"

// SchemaRegistryClient provides minimal interactions with Confluent Schema Registry.
type SchemaRegistryClient struct {
	http *resty.Client
}

// NewSchemaRegistryClient constructs a client with sane defaults.
func NewSchemaRegistryClient(baseURL string) *SchemaRegistryClient {
	return &SchemaRegistryClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(10 * time.Second).
			SetHeader("Accept", schemaRegistryContentType),
	}
}

type schemaIDResponse struct {
	ID int `json:"id"`
}

// EnsureSchema ensures a schema subject exists and returns the schema ID.
func (c *SchemaRegistryClient) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	if id, err := c.fetchLatest(ctx, subject); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrSubjectNotFound) {
		return 0, err
	}

	return c.register(ctx, subject, schema)
}

func (c *SchemaRegistryClient) fetchLatest(ctx context.Context, subject string) (int, error) {
	var payload schemaIDResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/subjects/" + url.PathEscape(subject) + "/versions/latest")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, ErrSubjectNotFound
	}
	if resp.IsError() {
		return 0, fmt.Errorf("schema registry error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return payload.ID, nil
}

func (c *SchemaRegistryClient) register(ctx context.Context, subject string, schema string) (int, error) {
	var payload schemaIDResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", schemaRegistryContentType).
		SetBody(map[string]any{
			"schemaType": "JSON",
			"schema":     schema,
		}).
		SetResult(&payload).
		Post("/subjects/" + url.PathEscape(subject) + "/versions")
	if err != nil {
		return 0, err
	}
	if resp.IsError() {
		return 0, fmt.Errorf("schema registry register error: status %d: %s", resp.StatusCode(), resp.String())
	}
	return payload.ID, nil
}
