package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestValidateSetup(t *testing.T) {
	tests := []struct {
		name      string
		household string
		user      string
		status    int
		body      string
		wantErr   error
		wantTitle string
	}{
		{name: "ok", household: "h1", user: "u1", status: http.StatusOK, body: `[{"id":"u1","first_name":"Ada","household_id":"h1"}]`, wantTitle: "ChoreShore - Ada"},
		{name: "nameless", household: "h1", user: "u1", status: http.StatusOK, body: `[{"id":"u1","household_id":"h1"}]`, wantTitle: "ChoreShore - User"},
		{name: "unauthorized", household: "h1", user: "u1", status: http.StatusUnauthorized, body: `{"message":"bad jwt"}`, wantErr: ErrInvalidAuth},
		{name: "unknown user", household: "h1", user: "u1", status: http.StatusOK, body: `[]`, wantErr: ErrInvalidAuth},
		{name: "wrong household", household: "h1", user: "u1", status: http.StatusOK, body: `[{"id":"u1","household_id":"h2"}]`, wantErr: ErrInvalidHousehold},
		{name: "household only", household: "h1", status: http.StatusOK, body: `[{"id":"u1"}]`, wantTitle: "ChoreShore"},
		{name: "empty household", household: "h1", status: http.StatusOK, body: `[]`, wantErr: ErrInvalidHousehold},
		{name: "missing household", household: "", user: "u1", status: http.StatusOK, body: `[]`, wantErr: ErrInvalidHousehold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != profilesPath {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			info, err := c.ValidateSetup(context.Background(), tt.household, tt.user)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.Title != tt.wantTitle {
				t.Fatalf("unexpected title: %q", info.Title)
			}
		})
	}
}

func TestValidateSetupCannotConnect(t *testing.T) {
	logger, _ := test.NewNullLogger()
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k", Timeout: time.Second}, logger)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = c.ValidateSetup(context.Background(), "h1", "u1")
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("expected cannot connect, got %v", err)
	}
	if errors.Is(err, ErrInvalidAuth) || errors.Is(err, ErrInvalidHousehold) {
		t.Fatalf("setup error categories must be distinct, got %v", err)
	}
}
