package provider

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Status is the shared vocabulary every gateway normalizes into. Provider
// quirks stop at the adapter boundary; the reconciler only ever sees these.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusFailed  Status = "FAILED"
	StatusExpired Status = "EXPIRED"
	StatusPending Status = "PENDING"
	StatusUnknown Status = "UNKNOWN"
)

var (
	// ErrBadSignature means a callback could not be authenticated as coming
	// from the provider. It must never be applied.
	ErrBadSignature = errors.New("callback signature rejected")

	// ErrTransient marks network failures and provider 5xx responses that
	// are safe to retry with backoff.
	ErrTransient = errors.New("transient provider error")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

type Customer struct {
	Name  string
	Email string
	Phone string
}

type PaymentRequest struct {
	// OrderID is the order's public identifier, passed to the gateway as
	// the idempotency/correlation key.
	OrderID  string
	Amount   int
	Customer Customer
}

type PaymentIntent struct {
	RedirectURL       string
	ProviderReference string
	ExpiresAt         time.Time
}

// CallbackEvent is a parsed, not-yet-normalized provider notification.
type CallbackEvent struct {
	Reference string
	RawStatus string
}

// Gateway is the contract every payment provider adapter implements.
// AuthenticateCallback must be called before ParseCallback output is
// trusted anywhere.
type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error)
	GetStatus(ctx context.Context, providerReference string) (string, error)
	AuthenticateCallback(header http.Header, body []byte) error
	ParseCallback(body []byte) (CallbackEvent, error)
	NormalizeStatus(providerStatus string) Status
}
