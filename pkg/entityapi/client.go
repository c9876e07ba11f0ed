// pkg/entityapi/client.go
package entityapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/David-Botos/entity-dataload/pkg/model"
)

// DefaultTimeout is the per-call timeout used when none is configured
const DefaultTimeout = 10 * time.Second

const maxErrorBody = 512

// Client calls the entity store's form-encoded HTTP API
type Client struct {
	baseURL         *url.URL
	clientID        string
	clientSecret    string
	timeout         time.Duration
	httpClient      *http.Client
	requestIDHeader string
	logger          *zap.Logger
}

// NewClient creates a client for the store at baseURL
func NewClient(baseURL, clientID, clientSecret string, logger *zap.Logger) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL: %q", baseURL)
	}
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}

	return &Client{
		baseURL:         u,
		clientID:        clientID,
		clientSecret:    clientSecret,
		timeout:         DefaultTimeout,
		httpClient:      &http.Client{},
		requestIDHeader: "X-Request-ID",
		logger:          logger.Named("entityapi"),
	}, nil
}

// WithTimeout sets the per-call timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// RecordResult is the per-record outcome of a bulk create. Successful
// entries carry only the new UUID.
type RecordResult struct {
	UUID        string
	Stat        string
	Kind        string
	Description string
	Code        int
}

// Failed reports whether the store rejected this record
func (r RecordResult) Failed() bool {
	return r.Stat == "error"
}

// UnmarshalJSON accepts either a bare UUID string or an error object
func (r *RecordResult) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = RecordResult{UUID: id, Stat: "ok"}
		return nil
	}

	var obj struct {
		Stat        string `json:"stat"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
		Code        int    `json:"code"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	*r = RecordResult{Stat: obj.Stat, Kind: obj.Error, Description: obj.Description, Code: obj.Code}
	return nil
}

// BulkCreateResult is the body of a successful bulk create call
type BulkCreateResult struct {
	Stat    string         `json:"stat"`
	Results []RecordResult `json:"uuid_results"`
}

// OK reports whether the response carried the expected status marker
func (r *BulkCreateResult) OK() bool {
	return r != nil && r.Stat == "ok"
}

// BulkCreate creates all records in a single call
func (c *Client) BulkCreate(ctx context.Context, typeName string, records []model.Record) (*BulkCreateResult, error) {
	attrs, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	params := url.Values{}
	params.Set("type_name", typeName)
	params.Set("all_attributes", string(attrs))

	var out BulkCreateResult
	if err := c.call(ctx, "entity.bulkCreate", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update replaces the attributes in value on the entity addressed by
// keyAttribute=keyValue. keyValue must already be JSON encoded.
func (c *Client) Update(ctx context.Context, typeName, keyAttribute, keyValue string, value model.Record) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode update value: %w", err)
	}

	params := url.Values{}
	params.Set("type_name", typeName)
	params.Set("key_attribute", keyAttribute)
	params.Set("key_value", keyValue)
	params.Set("value", string(body))

	return c.call(ctx, "entity.update", params, nil)
}

// Delete removes the entity with the given UUID
func (c *Client) Delete(ctx context.Context, typeName, id string) error {
	params := url.Values{}
	params.Set("type_name", typeName)
	params.Set("uuid", id)

	return c.call(ctx, "entity.delete", params, nil)
}

// Count returns the number of entities of typeName
func (c *Client) Count(ctx context.Context, typeName string) (int64, error) {
	params := url.Values{}
	params.Set("type_name", typeName)

	var out struct {
		TotalCount int64 `json:"total_count"`
	}
	if err := c.call(ctx, "entity.count", params, &out); err != nil {
		return 0, err
	}
	return out.TotalCount, nil
}

// envelope holds the fields every response may carry
type envelope struct {
	Stat        string `json:"stat"`
	Code        int    `json:"code"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("timeout", strconv.Itoa(timeoutSeconds(c.timeout)))

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + method

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", method, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.requestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	c.logger.Debug("API call",
		zap.String("method", method),
		zap.String("requestID", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if decodeErr == nil && env.Stat == "error" {
		return &APIError{
			Code:        env.Code,
			Kind:        env.Error,
			Description: env.Description,
			RequestID:   requestID,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       snippet,
			RequestID:  requestID,
		}
	}

	if decodeErr != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrUnexpectedResponse, decodeErr)
	}
	if out == nil {
		if env.Stat != "ok" {
			return fmt.Errorf("%s: %w: missing stat", method, ErrUnexpectedResponse)
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", method, ErrUnexpectedResponse, err)
	}
	return nil
}

// timeoutSeconds rounds up to whole seconds; the store rejects 0
func timeoutSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
