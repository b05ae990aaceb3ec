// Package client calls the floorline RPC API from terminals, tablets and the
// floorctl CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/floorline/api/internal/service"
	"github.com/google/uuid"
)

// ErrUnavailable means the backend could not be reached or failed on its
// side. Commands that fail this way may be queued and replayed.
var ErrUnavailable = errors.New("backend unavailable")

// CodeConflict marks a refusal caused by a concurrent update. The server
// sends it with 409, as it does for invalid transitions.
const CodeConflict = "conflict"

// APIError is a 4xx answer. Most mean the command was understood and
// refused, so replaying it unchanged will not help; see Retryable.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Retryable reports a refusal that says nothing about the command itself:
// a lost race, an expired token, a timeout or rate limiting.
func (e *APIError) Retryable() bool {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusConflict:
		return e.Code == CodeConflict
	}
	return false
}

const idempotencyKeyHeader = "Idempotency-Key"

// Config holds client-side settings.
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	Token          string        `yaml:"token"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	HealthInterval time.Duration `yaml:"health_interval"`
	QueuePath      string        `yaml:"queue_path"`
	Timeout        time.Duration `yaml:"timeout"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8081"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 4 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 5 * time.Second
	}
	if c.QueuePath == "" {
		c.QueuePath = "floorline-queue.db"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Call invokes POST /rpc/<op>. in may be nil or a json.RawMessage; out may be
// nil. An empty idempotencyKey sends no header.
func (c *Client) Call(ctx context.Context, op string, in, out any, idempotencyKey string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/rpc/"+op, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(idempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s response: %v", ErrUnavailable, op, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s: HTTP %d: %s", ErrUnavailable, op, resp.StatusCode, errorMessage(data))
	case resp.StatusCode >= 400:
		code, msg := errorBody(data)
		return &APIError{Status: resp.StatusCode, Code: code, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w (body: %s)", op, err, string(data))
	}
	return nil
}

func errorMessage(body []byte) string {
	_, msg := errorBody(body)
	return msg
}

func errorBody(body []byte) (code, msg string) {
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Code, e.Error
	}
	return "", strings.TrimSpace(string(body))
}

// Health checks GET /health. Any failure reads as ErrUnavailable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// WebsocketURL is the push channel address for the given topics, carrying
// the token as a query parameter.
func (c *Client) WebsocketURL(topics ...string) (string, error) {
	u, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	if c.token != "" {
		q.Set("token", c.token)
	}
	if len(topics) > 0 {
		q.Set("topics", strings.Join(topics, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// --- Typed operations ---

type OrderLineInput struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int32  `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

type CreateOrderInput struct {
	TableNumber int32            `json:"table_number"`
	Lines       []OrderLineInput `json:"lines"`
	WaiterName  string           `json:"waiter_name,omitempty"`
}

type CreateOrderOutput struct {
	OrderID uuid.UUID     `json:"order_id"`
	Order   service.Order `json:"order"`
}

type UpdateStatusInput struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type ServiceRequestInput struct {
	TableNumber int32  `json:"table_number"`
	Kind        string `json:"kind"`
	Notes       string `json:"notes,omitempty"`
}

// NewIdempotencyKey returns a fresh client-generated command token.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderInput, idempotencyKey string) (*CreateOrderOutput, error) {
	var out CreateOrderOutput
	if err := c.Call(ctx, "orders.create", in, &out, idempotencyKey); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, in UpdateStatusInput, idempotencyKey string) (*service.Order, error) {
	var out service.Order
	if err := c.Call(ctx, "orders.updateStatus", in, &out, idempotencyKey); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*service.Order, error) {
	var out service.Order
	if err := c.Call(ctx, "orders.get", map[string]string{"order_id": orderID}, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ActiveOrders(ctx context.Context) ([]service.Order, error) {
	var out []service.Order
	if err := c.Call(ctx, "orders.getActive", nil, &out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tables(ctx context.Context) ([]service.Table, error) {
	var out []service.Table
	if err := c.Call(ctx, "tables.getAll", nil, &out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Table(ctx context.Context, number int32) (*service.Table, error) {
	var out service.Table
	if err := c.Call(ctx, "tables.get", map[string]int32{"table_number": number}, &out, ""); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateServiceRequest(ctx context.Context, in ServiceRequestInput, idempotencyKey string) (*service.ServiceRequest, error) {
	var out service.ServiceRequest
	if err := c.Call(ctx, "serviceRequests.create", in, &out, idempotencyKey); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsUnavailable reports whether err is a connectivity or server-side failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
