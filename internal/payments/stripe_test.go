package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testGateway(t *testing.T, handler http.HandlerFunc) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewStripeGateway("sk_test_123")
	g.baseURL = srv.URL
	return g
}

func TestCreateIntent(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/payment_intents" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "sk_test_123" {
			t.Error("missing basic auth with secret key")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "2397" {
			t.Errorf("amount = %s, want 2397", got)
		}
		if got := r.PostForm.Get("currency"); got != "usd" {
			t.Errorf("currency = %s, want usd", got)
		}
		if got := r.PostForm.Get("metadata[orderId]"); got != "abc123def456abc123def456" {
			t.Errorf("metadata[orderId] = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "pi_123",
			"client_secret": "pi_123_secret_x",
			"status": "requires_payment_method",
			"metadata": {"orderId": "abc123def456abc123def456"}
		}`))
	})

	in, err := g.CreateIntent(context.Background(), 2397, "USD",
		map[string]string{"orderId": "abc123def456abc123def456"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if in.ID != "pi_123" || in.ClientSecret != "pi_123_secret_x" {
		t.Errorf("unexpected intent: %+v", in)
	}
	if in.Metadata["orderId"] != "abc123def456abc123def456" {
		t.Errorf("metadata lost: %+v", in.Metadata)
	}
}

func TestRetrieveIntent(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !strings.HasSuffix(r.URL.Path, "/payment_intents/pi_9") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "pi_9", "status": "succeeded", "metadata": {"orderId": "o-9"}}`))
	})

	in, err := g.RetrieveIntent(context.Background(), "pi_9")
	if err != nil {
		t.Fatalf("RetrieveIntent: %v", err)
	}
	if in.Status != StatusSucceeded || in.Metadata["orderId"] != "o-9" {
		t.Errorf("unexpected intent: %+v", in)
	}
}

func TestUnconfiguredGateway(t *testing.T) {
	g := NewStripeGateway("")
	_, err := g.CreateIntent(context.Background(), 100, "USD", nil)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}

func TestGatewayClientError(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error": {"message": "Your card was declined."}}`))
	})

	_, err := g.CreateIntent(context.Background(), 100, "USD", nil)
	if err == nil || errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("client errors are not unavailability: %v", err)
	}
	if !strings.Contains(err.Error(), "declined") {
		t.Errorf("expected gateway message, got %v", err)
	}
}

func TestGatewayServerError(t *testing.T) {
	g := testGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{}`))
	})

	_, err := g.RetrieveIntent(context.Background(), "pi_1")
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("err = %v, want ErrGatewayUnavailable", err)
	}
}
