package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/clock"
	"github.com/prawira/gotix/internal/inventory"
	"github.com/prawira/gotix/internal/issuer"
	"github.com/prawira/gotix/internal/models"
	"github.com/prawira/gotix/internal/provider"
)

var (
	// ErrUnknownReference means no order matches the callback's provider
	// reference.
	ErrUnknownReference = errors.New("no order for provider reference")

	// ErrInconsistentState marks a verified callback that contradicts a
	// terminal order, e.g. PAID arriving for an order already FAILED. The
	// order is flagged for manual review and never auto-resolved.
	ErrInconsistentState = errors.New("callback contradicts order state")
)

// Outcome describes what applying a callback did.
type Outcome string

const (
	// OutcomeApplied: the order transitioned and its effects ran.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate: the callback was already fully applied; no effects.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeIgnored: a non-terminal provider status with nothing to do.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeFlagged: inconsistent with a terminal order, left for review.
	OutcomeFlagged Outcome = "flagged"
)

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	OrderByProviderReference(ctx context.Context, providerName, reference string) (*models.Order, error)
	OrderByReservationID(ctx context.Context, reservationID uuid.UUID) (*models.Order, error)
	TransitionOrder(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	MarkOrderNeedsReview(ctx context.Context, id uuid.UUID) error
	RecordCallback(ctx context.Context, callback *models.PaymentCallback) (bool, error)
}

// Reconciler drives an order's state forward exactly once per provider
// outcome, no matter how often or in what order deliveries arrive. All
// effects run in one transaction with the state transition, so a crash
// mid-apply leaves the callback re-appliable.
type Reconciler struct {
	store  Store
	ledger *inventory.Ledger
	issuer *issuer.Issuer
	clock  clock.Clock
}

func NewReconciler(store Store, ledger *inventory.Ledger, iss *issuer.Issuer, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.System()
	}
	return &Reconciler{store: store, ledger: ledger, issuer: iss, clock: clk}
}

// Apply takes a verified, normalized provider outcome and applies it to the
// matching order. Callers must have authenticated the callback first.
func (r *Reconciler) Apply(ctx context.Context, providerName, reference string, status provider.Status, rawStatus string) (Outcome, error) {
	if reference == "" {
		return "", ErrUnknownReference
	}

	var outcome Outcome
	var inconsistent bool

	err := r.store.WithTx(ctx, func(txCtx context.Context) error {
		order, err := r.store.OrderByProviderReference(txCtx, providerName, reference)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s/%s", ErrUnknownReference, providerName, reference)
		}

		if status == provider.StatusPending || status == provider.StatusUnknown {
			outcome = OutcomeIgnored
			if status == provider.StatusUnknown {
				log.Printf("reconcile: unknown status %q from %s for order %s", rawStatus, providerName, order.PublicID)
			}
			return nil
		}

		fresh, err := r.store.RecordCallback(txCtx, &models.PaymentCallback{
			Provider:          providerName,
			ProviderReference: reference,
			Status:            string(status),
			RawStatus:         rawStatus,
			ReceivedAt:        r.clock.Now(),
		})
		if err != nil {
			return err
		}
		if !fresh {
			log.Printf("reconcile: duplicate %s callback for order %s discarded", status, order.PublicID)
		}

		switch {
		case order.Status == models.OrderAwaitingPayment:
			outcome, err = r.applyToAwaiting(txCtx, order, status)
			return err

		case order.IsTerminal():
			if status == provider.StatusPaid && order.Status != models.OrderPaid {
				if err := r.store.MarkOrderNeedsReview(txCtx, order.ID); err != nil {
					return err
				}
				log.Printf("reconcile: PAID callback for %s order %s flagged for review", order.Status, order.PublicID)
				outcome = OutcomeFlagged
				inconsistent = true
				return nil
			}
			outcome = OutcomeDuplicate
			return nil

		default:
			// Order still PENDING: createPayment has not completed, the
			// coordinator owns the next step.
			if status == provider.StatusPaid {
				if err := r.store.MarkOrderNeedsReview(txCtx, order.ID); err != nil {
					return err
				}
				log.Printf("reconcile: PAID callback for PENDING order %s flagged for review", order.PublicID)
				outcome = OutcomeFlagged
				inconsistent = true
				return nil
			}
			outcome = OutcomeIgnored
			return nil
		}
	})
	if err != nil {
		return "", err
	}
	if inconsistent {
		return outcome, ErrInconsistentState
	}
	return outcome, nil
}

func (r *Reconciler) applyToAwaiting(ctx context.Context, order *models.Order, status provider.Status) (Outcome, error) {
	switch status {
	case provider.StatusPaid:
		swapped, err := r.store.TransitionOrder(ctx, order.ID, models.OrderAwaitingPayment, models.OrderPaid)
		if err != nil {
			return "", err
		}
		if !swapped {
			return OutcomeDuplicate, nil
		}
		if err := r.ledger.Commit(ctx, order.ReservationID); err != nil {
			return "", err
		}
		if _, err := r.issuer.Issue(ctx, order.ID, order.ReservationID, order.UserID); err != nil {
			return "", err
		}
		return OutcomeApplied, nil

	case provider.StatusFailed, provider.StatusExpired:
		target := models.OrderFailed
		if status == provider.StatusExpired {
			target = models.OrderExpired
		}
		swapped, err := r.store.TransitionOrder(ctx, order.ID, models.OrderAwaitingPayment, target)
		if err != nil {
			return "", err
		}
		if !swapped {
			return OutcomeDuplicate, nil
		}
		if err := r.ledger.Release(ctx, order.ReservationID); err != nil {
			return "", err
		}
		return OutcomeApplied, nil
	}

	return OutcomeIgnored, nil
}

// ExpireOverdue releases reservations whose TTL elapsed without a PAID
// outcome and drives their orders to EXPIRED. It is the only source of
// automatic cancellation. Returns how many reservations were expired.
func (r *Reconciler) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	due, err := r.ledger.Due(ctx, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, reservation := range due {
		err := r.store.WithTx(ctx, func(txCtx context.Context) error {
			order, err := r.store.OrderByReservationID(txCtx, reservation.ID)
			if err != nil {
				return err
			}
			if order != nil {
				swapped, err := r.store.TransitionOrder(txCtx, order.ID, models.OrderAwaitingPayment, models.OrderExpired)
				if err != nil {
					return err
				}
				if !swapped {
					if _, err := r.store.TransitionOrder(txCtx, order.ID, models.OrderPending, models.OrderExpired); err != nil {
						return err
					}
				}
			}
			// Release no-ops if a PAID callback committed the hold first.
			return r.ledger.Release(txCtx, reservation.ID)
		})
		if err != nil {
			return expired, err
		}
		expired++
	}
	if expired > 0 {
		log.Printf("reconcile: expired %d overdue reservations", expired)
	}
	return expired, nil
}
