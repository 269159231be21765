package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/lumen-api/lumen/internal/params"
	"github.com/lumen-api/lumen/internal/schema"
)

// Client talks the query convention to one endpoint. It is safe for
// concurrent use; all per-query state lives on proxies and records.
type Client struct {
	config   Config
	registry *schema.Registry
	http     *http.Client
	base     string
}

// New validates the configuration and builds a client over the given
// schema registry.
func New(config Config, registry *schema.Registry) (*Client, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:   config,
		registry: registry,
		http:     httpClient,
		base:     config.basePath(),
	}, nil
}

// Resource returns the typed handle for a registered resource by its
// singular name.
func (c *Client) Resource(name string) (*Resource, error) {
	res, ok := c.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("resource %s is not registered", name)
	}
	return &Resource{client: c, schema: res}, nil
}

// MustResource is Resource for setup paths where a missing schema is
// programmer error.
func (c *Client) MustResource(name string) *Resource {
	res, err := c.Resource(name)
	if err != nil {
		panic(err)
	}
	return res
}

// envelope is a parsed response body: the payload keys, the metadata
// side-channel, and the request id echoed by the server.
type envelope struct {
	keys      map[string]json.RawMessage
	meta      params.Meta
	requestID string
}

// collection extracts the record list, preferring the resource's plural
// key and falling back to the singular (a one-record envelope).
func (e *envelope) collection(res *schema.Resource) ([]map[string]any, error) {
	if raw, ok := e.keys[res.CollectionName()]; ok {
		var records []map[string]any
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s collection: %w", res.CollectionName(), err)
		}
		return records, nil
	}
	if raw, ok := e.keys[res.Name()]; ok {
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", res.Name(), err)
		}
		return []map[string]any{rec}, nil
	}
	return nil, nil
}

// record extracts the single-record payload keyed by the singular name.
func (e *envelope) record(res *schema.Resource) (map[string]any, error) {
	raw, ok := e.keys[res.Name()]
	if !ok {
		return nil, nil
	}
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", res.Name(), err)
	}
	return rec, nil
}

// value extracts an arbitrary payload key, used for remote methods.
func (e *envelope) value(name string) (any, bool) {
	raw, ok := e.keys[name]
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) post(ctx context.Context, path string, body any) (*envelope, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) patch(ctx context.Context, path string, body any) (*envelope, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

// do runs one HTTP round trip. Every request carries a generated
// X-Request-Id, suffixed with "/<client id>" when one is configured.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*envelope, error) {
	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	requestID := c.newRequestID()
	req.Header.Set("X-Request-Id", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{RequestID: requestID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Status: resp.StatusCode, RequestID: requestID, Err: err}
	}

	if echoed := resp.Header.Get("X-Request-Id"); echoed != "" {
		requestID = echoed
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.responseError(resp, data, requestID)
	}
	if len(data) == 0 {
		return &envelope{keys: map[string]json.RawMessage{}, requestID: requestID}, nil
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, &TransportError{Status: resp.StatusCode, RequestID: requestID, Err: err}
	}

	env := &envelope{keys: keys, requestID: requestID}
	if raw, ok := keys["meta"]; ok {
		if err := json.Unmarshal(raw, &env.meta); err != nil {
			return nil, &TransportError{Status: resp.StatusCode, RequestID: requestID, Err: err}
		}
		delete(keys, "meta")
	}
	return env, nil
}

// responseError maps a non-2xx response onto the error taxonomy, parsing
// messages out of JSON and XML bodies alike.
func (c *Client) responseError(resp *http.Response, data []byte, requestID string) error {
	contentType := resp.Header.Get("Content-Type")

	var body params.ErrorBody
	if len(data) > 0 {
		json.Unmarshal(data, &body)
	}
	messages := body.Messages()
	if len(messages) == 0 {
		messages = params.DecodeErrorMessages(contentType, data)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &BadRequestError{Messages: messages, RequestID: requestID}
	case http.StatusNotFound:
		return &NotFoundError{Messages: messages, RequestID: requestID}
	case http.StatusUnprocessableEntity:
		return &ValidationError{Fields: body.Fields(), Messages: messages, RequestID: requestID}
	default:
		return &TransportError{Status: resp.StatusCode, Messages: messages, RequestID: requestID}
	}
}

func (c *Client) newRequestID() string {
	id := uuid.New().String()
	if c.config.ClientID != "" {
		id += "/" + c.config.ClientID
	}
	return id
}
