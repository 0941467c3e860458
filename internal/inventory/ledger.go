package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/clock"
	"github.com/prawira/gotix/internal/models"
)

var (
	// ErrOutOfStock is returned when an event cannot satisfy the requested
	// quantity. It is surfaced to the caller as-is, never truncated to a
	// smaller grant.
	ErrOutOfStock = errors.New("not enough seats available")

	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// Store is the persistence the ledger needs. HoldSeats must be atomic with
// respect to concurrent callers for the same event.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	HoldSeats(ctx context.Context, eventID uuid.UUID, quantity int) (bool, error)
	ReturnSeats(ctx context.Context, eventID uuid.UUID, quantity int) error
	CreateReservation(ctx context.Context, reservation *models.Reservation) error
	ReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	DueReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error)
}

const DefaultTTL = 15 * time.Minute

// Ledger owns the per-event seat counter. All capacity mutation goes
// through Reserve, Release and ReleaseIssued; no other component writes
// issued_count.
type Ledger struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
}

func NewLedger(store Store, clk clock.Clock, ttl time.Duration) *Ledger {
	if clk == nil {
		clk = clock.System()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{store: store, clock: clk, ttl: ttl}
}

// Reserve atomically claims quantity seats and records a held reservation
// with a TTL. Losers of the capacity race get ErrOutOfStock immediately;
// no remote call happens inside this critical section.
func (l *Ledger) Reserve(ctx context.Context, eventID uuid.UUID, quantity int) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	reservation := &models.Reservation{
		ID:        uuid.New(),
		EventID:   eventID,
		Quantity:  quantity,
		Status:    models.ReservationHeld,
		ExpiresAt: l.clock.Now().Add(l.ttl),
	}

	err := l.store.WithTx(ctx, func(txCtx context.Context) error {
		held, err := l.store.HoldSeats(txCtx, eventID, quantity)
		if err != nil {
			return fmt.Errorf("hold seats: %w", err)
		}
		if !held {
			return ErrOutOfStock
		}
		return l.store.CreateReservation(txCtx, reservation)
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Commit marks a reservation's seats as permanently issued. Committing an
// already-committed reservation is a no-op.
func (l *Ledger) Commit(ctx context.Context, reservationID uuid.UUID) error {
	return l.store.WithTx(ctx, func(txCtx context.Context) error {
		swapped, err := l.store.TransitionReservation(txCtx, reservationID, models.ReservationHeld, models.ReservationCommitted)
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
		reservation, err := l.store.ReservationByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status == models.ReservationCommitted {
			return nil
		}
		return fmt.Errorf("commit reservation %s: hold already %s", reservationID, reservation.Status)
	})
}

// Release returns a held reservation's seats to the event. Releasing a
// committed or already-released reservation is a no-op, so retries and
// duplicate sweeps cannot corrupt the counter.
func (l *Ledger) Release(ctx context.Context, reservationID uuid.UUID) error {
	return l.store.WithTx(ctx, func(txCtx context.Context) error {
		reservation, err := l.store.ReservationByID(txCtx, reservationID)
		if err != nil {
			return err
		}
		swapped, err := l.store.TransitionReservation(txCtx, reservationID, models.ReservationHeld, models.ReservationReleased)
		if err != nil {
			return err
		}
		if !swapped {
			return nil
		}
		return l.store.ReturnSeats(txCtx, reservation.EventID, reservation.Quantity)
	})
}

// ReleaseIssued gives already-issued seats back to an event. It backs the
// administrative ticket cancellation path.
func (l *Ledger) ReleaseIssued(ctx context.Context, eventID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return l.store.ReturnSeats(ctx, eventID, quantity)
}

// Due lists held reservations whose TTL has elapsed.
func (l *Ledger) Due(ctx context.Context, limit int) ([]models.Reservation, error) {
	return l.store.DueReservations(ctx, l.clock.Now(), limit)
}
