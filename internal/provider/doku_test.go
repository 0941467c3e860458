package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prawira/gotix/internal/clock"
)

func dokuSign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestDokuTokenCache(t *testing.T) {
	var tokenCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authorization/v1/access-token/b2b":
			atomic.AddInt32(&tokenCalls, 1)
			if got := r.Header.Get("X-CLIENT-KEY"); got != "client-1" {
				t.Errorf("unexpected client key %q", got)
			}
			timestamp := r.Header.Get("X-TIMESTAMP")
			want := dokuSign("secret-1", "client-1|"+timestamp)
			if got := r.Header.Get("X-SIGNATURE"); got != want {
				t.Errorf("token signature mismatch: got %q want %q", got, want)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"accessToken": "tok-abc",
				"tokenType":   "Bearer",
				"expiresIn":   900,
			})
		case "/checkout/v1/payment/GTX-1":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-abc" {
				t.Errorf("unexpected auth header %q", got)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"transaction": map[string]string{"status": "SUCCESS"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	gateway := NewDoku(DokuConfig{ClientID: "client-1", SecretKey: "secret-1", BaseURL: server.URL}, server.Client(), clk)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		status, err := gateway.GetStatus(ctx, "GTX-1")
		if err != nil {
			t.Fatalf("get status: %v", err)
		}
		if status != "SUCCESS" {
			t.Fatalf("expected SUCCESS, got %q", status)
		}
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("expected 1 token fetch for 3 calls, got %d", got)
	}

	// Past the expiry minus the refresh window the token is re-fetched.
	clk.Advance(15 * time.Minute)
	if _, err := gateway.GetStatus(ctx, "GTX-1"); err != nil {
		t.Fatalf("get status after expiry: %v", err)
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 2 {
		t.Fatalf("expected token refresh, got %d fetches", got)
	}
}

func TestDokuCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/authorization/v1/access-token/b2b":
			json.NewEncoder(w).Encode(map[string]interface{}{"accessToken": "tok", "expiresIn": 900})
		case "/checkout/v1/payment":
			var payload struct {
				Order struct {
					InvoiceNumber string `json:"invoice_number"`
					Amount        int    `json:"amount"`
				} `json:"order"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("decode payment body: %v", err)
			}
			if payload.Order.InvoiceNumber != "GTX-42" || payload.Order.Amount != 150000 {
				t.Errorf("unexpected order payload %+v", payload.Order)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"response": map[string]interface{}{
					"order":   map[string]string{"invoice_number": "GTX-42"},
					"payment": map[string]string{"url": "https://pay.example/GTX-42"},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	gateway := NewDoku(DokuConfig{ClientID: "c", SecretKey: "s", BaseURL: server.URL}, server.Client(), nil)
	intent, err := gateway.CreatePayment(context.Background(), PaymentRequest{
		OrderID: "GTX-42",
		Amount:  150000,
		Customer: Customer{
			Name:  "Rizky",
			Email: "rizky@example.com",
		},
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if intent.RedirectURL != "https://pay.example/GTX-42" {
		t.Fatalf("unexpected redirect url %q", intent.RedirectURL)
	}
	if intent.ProviderReference != "GTX-42" {
		t.Fatalf("unexpected provider reference %q", intent.ProviderReference)
	}
}

func TestDokuCreatePaymentTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/authorization/v1/access-token/b2b" {
			json.NewEncoder(w).Encode(map[string]interface{}{"accessToken": "tok", "expiresIn": 900})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	gateway := NewDoku(DokuConfig{ClientID: "c", SecretKey: "s", BaseURL: server.URL}, server.Client(), nil)
	_, err := gateway.CreatePayment(context.Background(), PaymentRequest{OrderID: "GTX-1", Amount: 1000})
	if !IsTransient(err) {
		t.Fatalf("expected transient error on 502, got %v", err)
	}
}

func TestDokuAuthenticateCallback(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(now)
	gateway := NewDoku(DokuConfig{ClientID: "client-1", SecretKey: "secret-1"}, nil, clk)

	body := []byte(`{"order":{"invoice_number":"GTX-7"},"transaction":{"status":"SUCCESS"}}`)
	timestamp := now.Format("2006-01-02T15:04:05Z")
	digest := sha256.Sum256(body)
	signature := dokuSign("secret-1", "client-1|"+timestamp+"|"+hex.EncodeToString(digest[:]))

	signedHeader := func(sig, ts string) http.Header {
		header := http.Header{}
		if sig != "" {
			header.Set("X-Signature", sig)
		}
		if ts != "" {
			header.Set("X-Timestamp", ts)
		}
		return header
	}

	t.Run("valid signature accepted", func(t *testing.T) {
		if err := gateway.AuthenticateCallback(signedHeader(signature, timestamp), body); err != nil {
			t.Fatalf("expected signature to verify: %v", err)
		}
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		tampered := []byte(`{"order":{"invoice_number":"GTX-8"},"transaction":{"status":"SUCCESS"}}`)
		err := gateway.AuthenticateCallback(signedHeader(signature, timestamp), tampered)
		if !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		forged := dokuSign("wrong-secret", "client-1|"+timestamp+"|"+hex.EncodeToString(digest[:]))
		err := gateway.AuthenticateCallback(signedHeader(forged, timestamp), body)
		if !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("missing headers rejected", func(t *testing.T) {
		err := gateway.AuthenticateCallback(signedHeader("", ""), body)
		if !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature, got %v", err)
		}
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		stale := now.Add(-10 * time.Minute).Format("2006-01-02T15:04:05Z")
		staleDigest := sha256.Sum256(body)
		staleSig := dokuSign("secret-1", "client-1|"+stale+"|"+hex.EncodeToString(staleDigest[:]))
		err := gateway.AuthenticateCallback(signedHeader(staleSig, stale), body)
		if !errors.Is(err, ErrBadSignature) {
			t.Fatalf("expected ErrBadSignature for stale timestamp, got %v", err)
		}
	})
}

func TestDokuParseCallback(t *testing.T) {
	gateway := NewDoku(DokuConfig{}, nil, nil)

	event, err := gateway.ParseCallback([]byte(`{"order":{"invoice_number":"GTX-7"},"transaction":{"status":"SUCCESS"}}`))
	if err != nil {
		t.Fatalf("parse callback: %v", err)
	}
	if event.Reference != "GTX-7" || event.RawStatus != "SUCCESS" {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := gateway.ParseCallback([]byte(`{"transaction":{"status":"SUCCESS"}}`)); err == nil {
		t.Fatal("expected error for missing invoice_number")
	}
	if _, err := gateway.ParseCallback([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestDokuNormalizeStatus(t *testing.T) {
	gateway := NewDoku(DokuConfig{}, nil, nil)

	cases := []struct {
		raw  string
		want Status
	}{
		{"SUCCESS", StatusPaid},
		{"success", StatusPaid},
		{"FAILED", StatusFailed},
		{"EXPIRED", StatusExpired},
		{"PENDING", StatusPending},
		{"REFUNDED", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tc := range cases {
		if got := gateway.NormalizeStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
