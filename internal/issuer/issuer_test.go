package issuer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/models"
)

type fakeStore struct {
	reservations map[uuid.UUID]*models.Reservation
	tickets      map[uuid.UUID][]models.Ticket
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reservations: make(map[uuid.UUID]*models.Reservation),
		tickets:      make(map[uuid.UUID][]models.Ticket),
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) TicketsByOrder(_ context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	return s.tickets[orderID], nil
}

func (s *fakeStore) ReservationByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation, ok := s.reservations[id]
	if !ok {
		return nil, errors.New("reservation not found")
	}
	copied := *reservation
	return &copied, nil
}

func (s *fakeStore) TransitionReservation(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	reservation, ok := s.reservations[id]
	if !ok || reservation.Status != from {
		return false, nil
	}
	reservation.Status = to
	return true, nil
}

func (s *fakeStore) CreateTickets(_ context.Context, tickets []*models.Ticket) error {
	for _, ticket := range tickets {
		s.tickets[ticket.OrderID] = append(s.tickets[ticket.OrderID], *ticket)
	}
	return nil
}

func TestIssuerIssue(t *testing.T) {
	eventID := uuid.New()
	orderID := uuid.New()
	userID := uuid.New()

	newHeldReservation := func(quantity int) *models.Reservation {
		return &models.Reservation{
			ID:        uuid.New(),
			EventID:   eventID,
			Quantity:  quantity,
			Status:    models.ReservationHeld,
			ExpiresAt: time.Now().Add(10 * time.Minute),
		}
	}

	t.Run("issues one ticket per reserved seat", func(t *testing.T) {
		store := newFakeStore()
		reservation := newHeldReservation(3)
		store.reservations[reservation.ID] = reservation

		tickets, err := NewIssuer(store).Issue(context.Background(), orderID, reservation.ID, userID)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if len(tickets) != 3 {
			t.Fatalf("expected 3 tickets, got %d", len(tickets))
		}
		if reservation.Status != models.ReservationCommitted {
			t.Fatalf("expected reservation committed, got %s", reservation.Status)
		}

		seen := make(map[string]bool)
		for _, ticket := range tickets {
			if ticket.Code == "" {
				t.Fatal("ticket issued without a redemption token")
			}
			if seen[ticket.Code] {
				t.Fatalf("duplicate redemption token %s", ticket.Code)
			}
			seen[ticket.Code] = true
		}
	})

	t.Run("reissuing returns the existing tickets", func(t *testing.T) {
		store := newFakeStore()
		reservation := newHeldReservation(2)
		store.reservations[reservation.ID] = reservation
		iss := NewIssuer(store)

		first, err := iss.Issue(context.Background(), orderID, reservation.ID, userID)
		if err != nil {
			t.Fatalf("first issue: %v", err)
		}
		second, err := iss.Issue(context.Background(), orderID, reservation.ID, userID)
		if err != nil {
			t.Fatalf("second issue: %v", err)
		}

		if len(second) != len(first) {
			t.Fatalf("expected %d tickets on retry, got %d", len(first), len(second))
		}
		if len(store.tickets[orderID]) != 2 {
			t.Fatalf("retry must not create duplicates, store has %d", len(store.tickets[orderID]))
		}
		if first[0].Code != second[0].Code {
			t.Fatal("retry must return the original tickets")
		}
	})

	t.Run("refuses a released reservation", func(t *testing.T) {
		store := newFakeStore()
		reservation := newHeldReservation(1)
		reservation.Status = models.ReservationReleased
		store.reservations[reservation.ID] = reservation

		if _, err := NewIssuer(store).Issue(context.Background(), orderID, reservation.ID, userID); !errors.Is(err, ErrReservationNotHeld) {
			t.Fatalf("expected ErrReservationNotHeld, got %v", err)
		}
		if len(store.tickets[orderID]) != 0 {
			t.Fatal("no tickets may exist for a released reservation")
		}
	})
}
