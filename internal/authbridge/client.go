// Package authbridge talks to the external phone-login service over HTTP.
// It is the production implementation of onboarding.Handshake.
package authbridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/onboarding"
)

// Client issues login exchanges against one auth-bridge endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a bridge client. httpClient controls timeouts and
// retries; pass the shared tuned client from the runtime.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Open starts a fresh exchange. No network happens until Start.
func (c *Client) Open(context.Context) (onboarding.Handshake, error) {
	return &exchange{client: c}, nil
}

type exchange struct {
	client  *Client
	loginID string
}

type startRequest struct {
	Phone string `json:"phone"`
}

type startResponse struct {
	LoginID string `json:"login_id"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type codeResponse struct {
	Status  string `json:"status"` // "ok" | "password_required"
	Session string `json:"session"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type sessionResponse struct {
	Session string `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (e *exchange) Start(ctx context.Context, phone string) error {
	var resp startResponse
	err := e.client.post(ctx, "/v1/logins", startRequest{Phone: phone}, &resp)
	if err != nil {
		return fmt.Errorf("start login: %w", err)
	}
	if resp.LoginID == "" {
		return fmt.Errorf("start login: empty login id")
	}
	e.loginID = resp.LoginID
	return nil
}

func (e *exchange) SubmitCode(ctx context.Context, code string) (onboarding.CodeResult, error) {
	var resp codeResponse
	err := e.client.post(ctx, e.path("code"), codeRequest{Code: code}, &resp)
	if err != nil {
		return onboarding.CodeResult{}, err
	}
	if resp.Status == "password_required" {
		return onboarding.CodeResult{NeedPassword: true}, nil
	}
	payload, err := base64.StdEncoding.DecodeString(resp.Session)
	if err != nil {
		return onboarding.CodeResult{}, fmt.Errorf("decode session: %w", err)
	}
	return onboarding.CodeResult{Session: payload}, nil
}

func (e *exchange) SubmitPassword(ctx context.Context, password string) ([]byte, error) {
	var resp sessionResponse
	err := e.client.post(ctx, e.path("password"), passwordRequest{Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	payload, err := base64.StdEncoding.DecodeString(resp.Session)
	if err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return payload, nil
}

func (e *exchange) Close(ctx context.Context) error {
	if e.loginID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		e.client.baseURL+"/v1/logins/"+url.PathEscape(e.loginID), nil)
	if err != nil {
		return err
	}
	resp, err := e.client.http.Do(req)
	if err != nil {
		return fmt.Errorf("close login: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (e *exchange) path(step string) string {
	return "/v1/logins/" + url.PathEscape(e.loginID) + "/" + step
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth bridge: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("auth bridge read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return mapError(resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("auth bridge decode: %w", err)
		}
	}
	return nil
}

// mapError translates bridge error codes into the sentinels the onboarding
// machine counts retries with. Anything unrecognized stays a hard error.
func mapError(status int, body []byte) error {
	var er errorResponse
	_ = json.Unmarshal(body, &er)
	switch er.Error {
	case "invalid_code":
		return errs.ErrInvalidCode
	case "code_expired":
		return errs.ErrCodeExpired
	case "invalid_password":
		return errs.ErrInvalidPassword
	}
	return fmt.Errorf("auth bridge: status %d: %s", status, strings.TrimSpace(string(body)))
}
