// Package mainapi is a thin authenticated HTTP client for the main
// service. Every verb carries the bearer token; retries on 401 are the
// caller's business (the engine retries once after a refresh).
package mainapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"TGModule/logger"
)

// Response is the flattened backend answer. A transport-level failure
// reports Status 0 with a nil body; handlers treat that as transient.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// JSON decodes the body into out.
func (r Response) JSON(out interface{}) error {
	return json.Unmarshal(r.Body, out)
}

type Client struct {
	base  string
	httpc *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		base:  base,
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Get(ctx context.Context, path, bearer string) Response {
	return c.do(ctx, http.MethodGet, path, bearer, "", nil)
}

func (c *Client) Delete(ctx context.Context, path, bearer string) Response {
	return c.do(ctx, http.MethodDelete, path, bearer, "", nil)
}

// PostJSON sends a JSON body, or an empty body when body is nil.
func (c *Client) PostJSON(ctx context.Context, path, bearer string, body interface{}) Response {
	if body == nil {
		return c.do(ctx, http.MethodPost, path, bearer, "", nil)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		logger.Error("mainapi marshal", zap.String("path", path), zap.Error(err))
		return Response{}
	}
	return c.do(ctx, http.MethodPost, path, bearer, "application/json", bytes.NewReader(raw))
}

// PostForm sends URL-encoded form parameters. Some main-service
// endpoints take forms instead of JSON, so both have to be supported.
func (c *Client) PostForm(ctx context.Context, path, bearer string, params url.Values) Response {
	return c.do(ctx, http.MethodPost, path, bearer,
		"application/x-www-form-urlencoded", strings.NewReader(params.Encode()))
}

// Patch always sends JSON.
func (c *Client) Patch(ctx context.Context, path, bearer string, body interface{}) Response {
	raw, err := json.Marshal(body)
	if err != nil {
		logger.Error("mainapi marshal", zap.String("path", path), zap.Error(err))
		return Response{}
	}
	return c.do(ctx, http.MethodPatch, path, bearer, "application/json", bytes.NewReader(raw))
}

func (c *Client) do(ctx context.Context, method, path, bearer, contentType string, body io.Reader) Response {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		logger.Error("mainapi request build", zap.String("path", path), zap.Error(err))
		return Response{}
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Debug("mainapi transport error",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return Response{}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{Status: resp.StatusCode}
	}
	return Response{Status: resp.StatusCode, Body: raw}
}
