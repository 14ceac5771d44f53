// Package auth talks to the authentication service. The service is an
// opaque remote: the bot only starts logins, polls their completion,
// refreshes token pairs and revokes them.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"TGModule/logger"
)

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

// LoginStartKind tags the three outcomes of start-login.
type LoginStartKind int

const (
	LoginStartURL LoginStartKind = iota // browser-visit URL (github/yandex)
	LoginStartCode
	LoginStartError
)

type LoginStartResult struct {
	Kind  LoginStartKind
	Value string // the URL or the code
	Err   string // explanation when Kind is LoginStartError
}

// CheckResult carries the raw auth-service answer for one token_in
// poll. The engine decides what it means: HTTP 200 plus the configured
// success marker plus both tokens present is a completed login; 401 and
// 404 mean the nonce is dead; everything else is "not yet".
type CheckResult struct {
	HTTP    int
	Status  string
	Access  string
	Refresh string
}

// StartLogin registers a client-minted nonce for one of the three
// flows. GET /auth/login?type=<t>&token_in=<n>.
func (c *Client) StartLogin(ctx context.Context, typ, tokenIn string) LoginStartResult {
	q := url.Values{"type": {typ}, "token_in": {tokenIn}}
	status, body, err := c.get(ctx, "/auth/login", q)
	if err != nil {
		return LoginStartResult{Kind: LoginStartError, Err: "auth/login unreachable"}
	}
	if status != http.StatusOK {
		return LoginStartResult{Kind: LoginStartError, Err: "auth/login failed: HTTP " + strconv.Itoa(status)}
	}
	var parsed struct {
		URL  *string `json:"url"`
		Code *string `json:"code"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return LoginStartResult{Kind: LoginStartError, Err: "bad json from auth/login"}
	}
	if parsed.URL != nil {
		return LoginStartResult{Kind: LoginStartURL, Value: *parsed.URL}
	}
	if parsed.Code != nil {
		return LoginStartResult{Kind: LoginStartCode, Value: *parsed.Code}
	}
	return LoginStartResult{Kind: LoginStartError, Err: "unexpected auth/login response"}
}

// Check polls login completion. GET /auth/check?token_in=<n>. A
// transport failure reports HTTP 0, which the engine treats the same as
// "not yet" — never promote on ambiguity.
func (c *Client) Check(ctx context.Context, tokenIn string) CheckResult {
	status, body, err := c.get(ctx, "/auth/check", url.Values{"token_in": {tokenIn}})
	if err != nil {
		logger.Debug("auth/check transport error", zap.Error(err))
		return CheckResult{}
	}
	out := CheckResult{HTTP: status}
	var parsed struct {
		Status  string `json:"status"`
		Access  string `json:"access_token"`
		Refresh string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		out.Status = parsed.Status
		out.Access = parsed.Access
		out.Refresh = parsed.Refresh
	}
	return out
}

// Refresh exchanges the refresh token for a new pair. POST
// /auth/refresh with a JSON body. Any non-200 or parse failure yields
// no new tokens.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (access, refresh string, ok bool) {
	payload, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return "", "", false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Debug("auth/refresh transport error", zap.Error(err))
		return "", "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", false
	}
	var parsed struct {
		Access  string `json:"access_token"`
		Refresh string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", false
	}
	if parsed.Access == "" || parsed.Refresh == "" {
		return "", "", false
	}
	return parsed.Access, parsed.Refresh, true
}

// Logout revokes the refresh token (all=true revokes every session of
// the user). Best-effort: the engine clears local state regardless.
func (c *Client) Logout(ctx context.Context, refreshToken string, all bool) bool {
	q := url.Values{"refresh_token": {refreshToken}}
	if all {
		q.Set("all", "true")
	} else {
		q.Set("all", "false")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/auth/logout?"+q.Encode(), nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		logger.Debug("auth/logout transport error", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) get(ctx context.Context, path string, q url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}
