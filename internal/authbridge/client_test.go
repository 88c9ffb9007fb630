package authbridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
)

func newBridgeServer(t *testing.T, codeStatus int, codeBody any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/logins", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(startResponse{LoginID: "login-1"})
	})
	mux.HandleFunc("POST /v1/logins/login-1/code", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(codeStatus)
		_ = json.NewEncoder(w).Encode(codeBody)
	})
	mux.HandleFunc("POST /v1/logins/login-1/password", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sessionResponse{
			Session: base64.StdEncoding.EncodeToString([]byte("pw-session")),
		})
	})
	mux.HandleFunc("DELETE /v1/logins/login-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchangeCodeSuccess(t *testing.T) {
	srv := newBridgeServer(t, http.StatusOK, codeResponse{
		Status:  "ok",
		Session: base64.StdEncoding.EncodeToString([]byte("raw-session")),
	})
	client := NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	hs, err := client.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := hs.Start(ctx, "+31612345678"); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := hs.SubmitCode(ctx, "12345")
	if err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if res.NeedPassword {
		t.Fatal("unexpected password challenge")
	}
	if string(res.Session) != "raw-session" {
		t.Fatalf("session = %q", res.Session)
	}
	if err := hs.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestExchangePasswordChallenge(t *testing.T) {
	srv := newBridgeServer(t, http.StatusOK, codeResponse{Status: "password_required"})
	client := NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	hs, _ := client.Open(ctx)
	if err := hs.Start(ctx, "+31612345678"); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := hs.SubmitCode(ctx, "12345")
	if err != nil {
		t.Fatalf("submit code: %v", err)
	}
	if !res.NeedPassword {
		t.Fatal("expected password challenge")
	}
	payload, err := hs.SubmitPassword(ctx, "hunter2")
	if err != nil {
		t.Fatalf("submit password: %v", err)
	}
	if string(payload) != "pw-session" {
		t.Fatalf("payload = %q", payload)
	}
}

func TestExchangeErrorMapping(t *testing.T) {
	cases := []struct {
		bridgeError string
		want        error
	}{
		{"invalid_code", errs.ErrInvalidCode},
		{"code_expired", errs.ErrCodeExpired},
	}
	for _, tc := range cases {
		srv := newBridgeServer(t, http.StatusUnprocessableEntity, errorResponse{Error: tc.bridgeError})
		client := NewClient(srv.URL, srv.Client())
		ctx := context.Background()

		hs, _ := client.Open(ctx)
		if err := hs.Start(ctx, "+31612345678"); err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := hs.SubmitCode(ctx, "00000"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.bridgeError, err, tc.want)
		}
	}
}

func TestExchangeUnknownErrorStaysHard(t *testing.T) {
	srv := newBridgeServer(t, http.StatusInternalServerError, errorResponse{Error: "boom"})
	client := NewClient(srv.URL, srv.Client())
	ctx := context.Background()

	hs, _ := client.Open(ctx)
	if err := hs.Start(ctx, "+31612345678"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := hs.SubmitCode(ctx, "12345")
	if err == nil || errors.Is(err, errs.ErrInvalidCode) || errors.Is(err, errs.ErrCodeExpired) {
		t.Fatalf("unexpected mapping: %v", err)
	}
}

func TestCloseWithoutStartIsNoop(t *testing.T) {
	client := NewClient("http://127.0.0.1:0", nil)
	hs, _ := client.Open(context.Background())
	if err := hs.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
}
