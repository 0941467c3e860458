package issuer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/models"
)

// ErrReservationNotHeld means the reservation backing an order was released
// before tickets could be issued, typically because its TTL ran out first.
var ErrReservationNotHeld = errors.New("reservation is no longer held")

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error)
	ReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	TransitionReservation(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
	CreateTickets(ctx context.Context, tickets []*models.Ticket) error
}

// Issuer converts a successful reservation into durable tickets, one per
// reserved seat, each carrying a fresh random redemption token.
type Issuer struct {
	store Store
}

func NewIssuer(store Store) *Issuer {
	return &Issuer{store: store}
}

// Issue creates the order's tickets and commits the reservation in one
// transaction. Re-invoking for an already-issued order returns the existing
// tickets, so retries after a crash cannot mint duplicates.
func (i *Issuer) Issue(ctx context.Context, orderID, reservationID, userID uuid.UUID) ([]models.Ticket, error) {
	var issued []models.Ticket

	err := i.store.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := i.store.TicketsByOrder(txCtx, orderID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			issued = existing
			return nil
		}

		reservation, err := i.store.ReservationByID(txCtx, reservationID)
		if err != nil {
			return err
		}

		swapped, err := i.store.TransitionReservation(txCtx, reservationID, models.ReservationHeld, models.ReservationCommitted)
		if err != nil {
			return err
		}
		if !swapped && reservation.Status != models.ReservationCommitted {
			return fmt.Errorf("%w: reservation %s is %s", ErrReservationNotHeld, reservationID, reservation.Status)
		}

		tickets := make([]*models.Ticket, 0, reservation.Quantity)
		for seat := 0; seat < reservation.Quantity; seat++ {
			tickets = append(tickets, &models.Ticket{
				ID:      uuid.New(),
				Code:    uuid.NewString(),
				OrderID: orderID,
				EventID: reservation.EventID,
				UserID:  userID,
			})
		}
		if err := i.store.CreateTickets(txCtx, tickets); err != nil {
			return err
		}

		issued = make([]models.Ticket, 0, len(tickets))
		for _, ticket := range tickets {
			issued = append(issued, *ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}
