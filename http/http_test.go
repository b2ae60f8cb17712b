package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL:     srv.URL,
		ServiceName: "test",
		RetryWait:   time.Millisecond,
	})
}

func TestClient_Get(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Write([]byte(`{"name":"ok"}`))
	})

	var result struct {
		Name string `json:"name"`
	}
	if err := client.Get(context.Background(), "/thing", &result); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if result.Name != "ok" {
		t.Errorf("Name = %q, want %q", result.Name, "ok")
	}
}

func TestClient_Post_SendsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})

	body := map[string]string{"key": "value"}
	if err := client.Post(context.Background(), "/things", body, nil); err != nil {
		t.Fatalf("Post: %v", err)
	}
}

func TestClient_BeforeRequest(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:     srv.URL,
		ServiceName: "test",
		BeforeRequest: func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer token")
		},
	})
	if err := client.Get(context.Background(), "/", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	})

	if err := client.Get(context.Background(), "/flaky", nil); err != nil {
		t.Fatalf("Get after retries: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestClient_ExhaustedRetriesReturnAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Get(context.Background(), "/down", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", apiErr.StatusCode)
	}
	if !errors.Is(err, ErrServerError) {
		t.Error("expected ErrServerError in chain")
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such thing"}`))
	})

	err := client.Get(context.Background(), "/missing", nil)
	if !IsNotFound(err) {
		t.Fatalf("IsNotFound = false, err = %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "no such thing" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}
