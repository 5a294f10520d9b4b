// Package odoo is an XML-RPC client for the Odoo external API.
package odoo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"erp-sync-service/internal/config"
	"erp-sync-service/internal/xmlrpc"
)

const (
	commonEndpoint = "/xmlrpc/2/common"
	objectEndpoint = "/xmlrpc/2/object"
)

// Client is a handle on one Odoo database. With a zero SessionTTL every Call
// performs its own authenticate handshake; a positive TTL caches the uid.
type Client struct {
	cfg  config.OdooConfig
	http *http.Client
	now  func() time.Time

	mu        sync.Mutex
	uid       int
	uidExpiry time.Time
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

func NewClient(cfg config.OdooConfig, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) rpc(ctx context.Context, endpoint, method string, params ...any) (any, error) {
	body, err := xmlrpc.EncodeCall(method, params...)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}

	url := strings.TrimRight(c.cfg.URL, "/") + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	return xmlrpc.DecodeResponse(data)
}

// Authenticate performs the common.authenticate handshake and returns the uid.
func (c *Client) Authenticate(ctx context.Context) (int, error) {
	res, err := c.rpc(ctx, commonEndpoint, "authenticate",
		c.cfg.Database, c.cfg.Username, c.cfg.Password, map[string]any{})
	if err != nil {
		return 0, err
	}
	uid, ok := res.(int)
	if !ok || uid <= 0 {
		return 0, &AuthenticationError{Database: c.cfg.Database, Username: c.cfg.Username}
	}
	return uid, nil
}

func (c *Client) session(ctx context.Context) (int, error) {
	if c.cfg.SessionTTL <= 0 {
		return c.Authenticate(ctx)
	}

	c.mu.Lock()
	if c.uid > 0 && c.now().Before(c.uidExpiry) {
		uid := c.uid
		c.mu.Unlock()
		return uid, nil
	}
	c.mu.Unlock()

	uid, err := c.Authenticate(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.uid = 0
		return 0, err
	}
	c.uid = uid
	c.uidExpiry = c.now().Add(c.cfg.SessionTTL)
	return uid, nil
}

// Call invokes model.method through object.execute_kw.
func (c *Client) Call(ctx context.Context, model, method string, args []any, kwargs map[string]any) (any, error) {
	uid, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	res, err := c.rpc(ctx, objectEndpoint, "execute_kw",
		c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return res, nil
}

func (c *Client) SearchRead(ctx context.Context, model string, domain Domain, opts ReadOptions) ([]map[string]any, error) {
	res, err := c.Call(ctx, model, "search_read", []any{domain.toArgs()}, opts.kwargs())
	if err != nil {
		return nil, err
	}
	return toRecords(model, "search_read", res)
}

func (c *Client) SearchCount(ctx context.Context, model string, domain Domain) (int, error) {
	res, err := c.Call(ctx, model, "search_count", []any{domain.toArgs()}, nil)
	if err != nil {
		return 0, err
	}
	n, ok := res.(int)
	if !ok {
		return 0, unexpected(model, "search_count", res)
	}
	return n, nil
}

func (c *Client) Read(ctx context.Context, model string, ids []int, fields []string) ([]map[string]any, error) {
	kwargs := map[string]any{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	res, err := c.Call(ctx, model, "read", []any{ids}, kwargs)
	if err != nil {
		return nil, err
	}
	return toRecords(model, "read", res)
}

// Create returns the id of the new record.
func (c *Client) Create(ctx context.Context, model string, values map[string]any) (int, error) {
	res, err := c.Call(ctx, model, "create", []any{values}, nil)
	if err != nil {
		return 0, err
	}
	switch id := res.(type) {
	case int:
		return id, nil
	case []any:
		if len(id) == 1 {
			if n, ok := id[0].(int); ok {
				return n, nil
			}
		}
	}
	return 0, unexpected(model, "create", res)
}

func (c *Client) Write(ctx context.Context, model string, ids []int, values map[string]any) error {
	_, err := c.Call(ctx, model, "write", []any{ids, values}, nil)
	return err
}

// Execute runs a button or action method such as button_validate on ids.
func (c *Client) Execute(ctx context.Context, model, method string, ids []int) (any, error) {
	return c.Call(ctx, model, method, []any{ids}, nil)
}

func toRecords(model, method string, res any) ([]map[string]any, error) {
	list, ok := res.([]any)
	if !ok {
		return nil, unexpected(model, method, res)
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, unexpected(model, method, item)
		}
		out = append(out, rec)
	}
	return out, nil
}

func unexpected(model, method string, v any) error {
	return fmt.Errorf("%s.%s: %w", model, method,
		&xmlrpc.DecodeError{Msg: fmt.Sprintf("unexpected result type %T", v)})
}
