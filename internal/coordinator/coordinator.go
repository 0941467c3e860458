package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/inventory"
	"github.com/prawira/gotix/internal/models"
	"github.com/prawira/gotix/internal/provider"
	"github.com/prawira/gotix/internal/reconcile"
)

const (
	// MaxPerOrder bounds one checkout; MaxPerUser is the lifetime cap of
	// issued tickets per user per event, counting in-flight orders.
	MaxPerOrder = 5
	MaxPerUser  = 5

	defaultPaymentAttempts = 3
	defaultPaymentBackoff  = 500 * time.Millisecond
)

var (
	ErrQuantityRange      = fmt.Errorf("quantity must be between 1 and %d", MaxPerOrder)
	ErrTicketLimit        = fmt.Errorf("ticket limit of %d per event reached", MaxPerUser)
	ErrUnknownProvider    = errors.New("unknown payment provider")
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
	ErrNotAwaitingPayment = errors.New("order has no pending payment")
	ErrPurchaseExpired    = errors.New("purchase expired before payment could start")
	ErrTicketNotFound     = errors.New("ticket not found")
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	EventByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	UserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	TransitionOrder(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	SetOrderPayment(ctx context.Context, id uuid.UUID, providerReference, redirectURL string) error
	PendingOrderQuantity(ctx context.Context, userID, eventID uuid.UUID) (int, error)
	CountIssuedTickets(ctx context.Context, userID, eventID uuid.UUID) (int, error)
	TicketByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error)
	DeleteTicket(ctx context.Context, id uuid.UUID) error
}

// Coordinator orchestrates a purchase attempt: reserve seats, create the
// payment intent, then hand the order to the reconciler once the provider
// reports an outcome.
type Coordinator struct {
	store      Store
	ledger     *inventory.Ledger
	reconciler *reconcile.Reconciler
	gateways   map[string]provider.Gateway

	paymentAttempts int
	paymentBackoff  time.Duration
}

type Option func(*Coordinator)

// WithPaymentRetry overrides how often and how fast createPayment is
// retried on transient provider errors.
func WithPaymentRetry(attempts int, backoff time.Duration) Option {
	return func(c *Coordinator) {
		if attempts > 0 {
			c.paymentAttempts = attempts
		}
		if backoff >= 0 {
			c.paymentBackoff = backoff
		}
	}
}

func New(store Store, ledger *inventory.Ledger, reconciler *reconcile.Reconciler, gateways []provider.Gateway, opts ...Option) *Coordinator {
	byName := make(map[string]provider.Gateway, len(gateways))
	for _, gateway := range gateways {
		byName[gateway.Name()] = gateway
	}
	coordinator := &Coordinator{
		store:           store,
		ledger:          ledger,
		reconciler:      reconciler,
		gateways:        byName,
		paymentAttempts: defaultPaymentAttempts,
		paymentBackoff:  defaultPaymentBackoff,
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator
}

type PurchaseInput struct {
	UserID   uuid.UUID
	EventID  uuid.UUID
	Quantity int
	Provider string
}

type PurchaseResult struct {
	Order       *models.Order
	RedirectURL string
}

// Purchase runs one checkout attempt end to end. Every path that reserves
// seats either advances the order to AWAITING_PAYMENT or releases the
// reservation before returning.
func (c *Coordinator) Purchase(ctx context.Context, in PurchaseInput) (*PurchaseResult, error) {
	if in.Quantity < 1 || in.Quantity > MaxPerOrder {
		return nil, ErrQuantityRange
	}

	gateway, ok := c.gateways[in.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, in.Provider)
	}

	event, err := c.store.EventByID(ctx, in.EventID)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:       uuid.New(),
		PublicID: "GTX-" + uuid.NewString(),
		UserID:   in.UserID,
		EventID:  in.EventID,
		Quantity: in.Quantity,
		Amount:   event.Price * in.Quantity,
		Provider: gateway.Name(),
		Status:   models.OrderPending,
	}

	// The cap check, the seat hold and the order insert share one
	// transaction, with the user row locked first so concurrent purchases by
	// the same user serialize and cannot jointly exceed the cap.
	var reservation *models.Reservation
	var user *models.User
	err = c.store.WithTx(ctx, func(txCtx context.Context) error {
		user, err = c.store.UserForUpdate(txCtx, in.UserID)
		if err != nil {
			return err
		}

		issued, err := c.store.CountIssuedTickets(txCtx, in.UserID, in.EventID)
		if err != nil {
			return err
		}
		pending, err := c.store.PendingOrderQuantity(txCtx, in.UserID, in.EventID)
		if err != nil {
			return err
		}
		if issued+pending+in.Quantity > MaxPerUser {
			return ErrTicketLimit
		}

		reservation, err = c.ledger.Reserve(txCtx, in.EventID, in.Quantity)
		if err != nil {
			return err
		}
		order.ReservationID = reservation.ID
		return c.store.CreateOrder(txCtx, order)
	})
	if err != nil {
		return nil, err
	}

	intent, err := c.createPaymentWithRetry(ctx, gateway, order, user)
	if err != nil {
		c.abandon(ctx, order, reservation.ID, true)
		return nil, err
	}

	if err := c.store.SetOrderPayment(ctx, order.ID, intent.ProviderReference, intent.RedirectURL); err != nil {
		c.abandon(ctx, order, reservation.ID, true)
		return nil, err
	}
	swapped, err := c.store.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderAwaitingPayment)
	if err != nil {
		c.abandon(ctx, order, reservation.ID, true)
		return nil, err
	}
	if !swapped {
		// The sweeper expired the order while the payment call was in
		// flight; its hold is already released.
		c.abandon(ctx, order, reservation.ID, false)
		return nil, ErrPurchaseExpired
	}

	order.Status = models.OrderAwaitingPayment
	order.ProviderReference = intent.ProviderReference
	order.RedirectURL = intent.RedirectURL
	return &PurchaseResult{Order: order, RedirectURL: intent.RedirectURL}, nil
}

// abandon gives a doomed purchase a terminal disposition: the reservation
// is always released, and the order (when it exists) is marked FAILED.
func (c *Coordinator) abandon(ctx context.Context, order *models.Order, reservationID uuid.UUID, failOrder bool) {
	if err := c.ledger.Release(ctx, reservationID); err != nil {
		log.Printf("coordinator: release reservation %s: %v", reservationID, err)
	}
	if failOrder {
		if _, err := c.store.TransitionOrder(ctx, order.ID, models.OrderPending, models.OrderFailed); err != nil {
			log.Printf("coordinator: fail order %s: %v", order.PublicID, err)
		}
	}
}

// createPaymentWithRetry calls the gateway a bounded number of times,
// backing off on transient errors. Before each retry it re-checks whether a
// previous attempt already produced a provider reference, so a timed-out
// call that actually succeeded never creates a second intent.
func (c *Coordinator) createPaymentWithRetry(ctx context.Context, gateway provider.Gateway, order *models.Order, user *models.User) (*provider.PaymentIntent, error) {
	req := provider.PaymentRequest{
		OrderID: order.PublicID,
		Amount:  order.Amount,
		Customer: provider.Customer{
			Name:  user.Name,
			Email: user.Email,
			Phone: user.PhoneNumber,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= c.paymentAttempts; attempt++ {
		if attempt > 1 {
			current, err := c.store.OrderByID(ctx, order.ID)
			if err == nil && current.ProviderReference != "" {
				return &provider.PaymentIntent{
					ProviderReference: current.ProviderReference,
					RedirectURL:       current.RedirectURL,
				}, nil
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.paymentBackoff * time.Duration(attempt-1)):
			}
		}

		intent, err := gateway.CreatePayment(ctx, req)
		if err == nil {
			return intent, nil
		}
		lastErr = err
		if !provider.IsTransient(err) {
			return nil, err
		}
		log.Printf("coordinator: createPayment attempt %d/%d for order %s: %v", attempt, c.paymentAttempts, order.PublicID, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrPaymentUnavailable, lastErr)
}

// HandleCallback authenticates an inbound provider notification and feeds
// the normalized outcome through the reconciler. Unauthenticated callbacks
// never reach it.
func (c *Coordinator) HandleCallback(ctx context.Context, providerName string, header http.Header, body []byte) (reconcile.Outcome, error) {
	gateway, ok := c.gateways[providerName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}
	if err := gateway.AuthenticateCallback(header, body); err != nil {
		return "", err
	}
	event, err := gateway.ParseCallback(body)
	if err != nil {
		return "", err
	}
	status := gateway.NormalizeStatus(event.RawStatus)
	return c.reconciler.Apply(ctx, gateway.Name(), event.Reference, status, event.RawStatus)
}

// SyncOrder polls the provider for an order's current status and applies
// it, a fallback for lost callbacks.
func (c *Coordinator) SyncOrder(ctx context.Context, orderID uuid.UUID) (reconcile.Outcome, error) {
	order, err := c.store.OrderByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.ProviderReference == "" {
		return "", ErrNotAwaitingPayment
	}
	gateway, ok := c.gateways[order.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, order.Provider)
	}
	rawStatus, err := gateway.GetStatus(ctx, order.ProviderReference)
	if err != nil {
		return "", err
	}
	status := gateway.NormalizeStatus(rawStatus)
	return c.reconciler.Apply(ctx, gateway.Name(), order.ProviderReference, status, rawStatus)
}

// CancelTicket removes an issued ticket and returns its seat to the event.
// Both run in one transaction so the counter cannot disagree with the
// tickets that actually exist.
func (c *Coordinator) CancelTicket(ctx context.Context, ticketID uuid.UUID) error {
	return c.store.WithTx(ctx, func(txCtx context.Context) error {
		ticket, err := c.store.TicketByID(txCtx, ticketID)
		if err != nil {
			return err
		}
		if ticket == nil {
			return ErrTicketNotFound
		}
		if err := c.store.DeleteTicket(txCtx, ticket.ID); err != nil {
			return err
		}
		return c.ledger.ReleaseIssued(txCtx, ticket.EventID, 1)
	})
}

// Gateway exposes a configured adapter by name, for callers that need
// provider metadata.
func (c *Coordinator) Gateway(name string) (provider.Gateway, bool) {
	gateway, ok := c.gateways[name]
	return gateway, ok
}
