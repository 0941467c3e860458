package provider

import (
	"errors"
	"net/http"
	"testing"
)

func TestXenditAuthenticateCallback(t *testing.T) {
	gateway := NewXendit(XenditConfig{SecretKey: "sk", CallbackToken: "cbtoken-1"}, nil)

	withToken := func(token string) http.Header {
		header := http.Header{}
		if token != "" {
			header.Set("X-Callback-Token", token)
		}
		return header
	}

	if err := gateway.AuthenticateCallback(withToken("cbtoken-1"), nil); err != nil {
		t.Fatalf("expected matching token to verify: %v", err)
	}
	if err := gateway.AuthenticateCallback(withToken("cbtoken-2"), nil); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for wrong token, got %v", err)
	}
	if err := gateway.AuthenticateCallback(withToken(""), nil); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for missing token, got %v", err)
	}

	// An unconfigured gateway rejects everything rather than accepting
	// empty-for-empty.
	unconfigured := NewXendit(XenditConfig{SecretKey: "sk"}, nil)
	if err := unconfigured.AuthenticateCallback(withToken(""), nil); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature when no token is configured, got %v", err)
	}
}

func TestXenditParseCallback(t *testing.T) {
	gateway := NewXendit(XenditConfig{SecretKey: "sk"}, nil)

	event, err := gateway.ParseCallback([]byte(`{"external_id":"GTX-9","status":"PAID","amount":150000}`))
	if err != nil {
		t.Fatalf("parse callback: %v", err)
	}
	if event.Reference != "GTX-9" || event.RawStatus != "PAID" {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := gateway.ParseCallback([]byte(`{"status":"PAID"}`)); err == nil {
		t.Fatal("expected error for missing external_id")
	}
	if _, err := gateway.ParseCallback([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestXenditNormalizeStatus(t *testing.T) {
	gateway := NewXendit(XenditConfig{SecretKey: "sk"}, nil)

	cases := []struct {
		raw  string
		want Status
	}{
		{"PAID", StatusPaid},
		{"SETTLED", StatusPaid},
		{"paid", StatusPaid},
		{"EXPIRED", StatusExpired},
		{"FAILED", StatusFailed},
		{"PENDING", StatusPending},
		{"VOIDED", StatusUnknown},
	}
	for _, tc := range cases {
		if got := gateway.NormalizeStatus(tc.raw); got != tc.want {
			t.Errorf("NormalizeStatus(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}
