package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prawira/gotix/internal/clock"
	"github.com/prawira/gotix/internal/models"
)

type fakeStore struct {
	mu           sync.Mutex
	totalSeats   map[uuid.UUID]int
	issuedCount  map[uuid.UUID]int
	reservations map[uuid.UUID]*models.Reservation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		totalSeats:   make(map[uuid.UUID]int),
		issuedCount:  make(map[uuid.UUID]int),
		reservations: make(map[uuid.UUID]*models.Reservation),
	}
}

func (s *fakeStore) addEvent(id uuid.UUID, total int) {
	s.totalSeats[id] = total
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) HoldSeats(_ context.Context, eventID uuid.UUID, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issuedCount[eventID]+quantity > s.totalSeats[eventID] {
		return false, nil
	}
	s.issuedCount[eventID] += quantity
	return true, nil
}

func (s *fakeStore) ReturnSeats(_ context.Context, eventID uuid.UUID, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issuedCount[eventID] >= quantity {
		s.issuedCount[eventID] -= quantity
	}
	return nil
}

func (s *fakeStore) CreateReservation(_ context.Context, reservation *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *reservation
	s.reservations[reservation.ID] = &copied
	return nil
}

func (s *fakeStore) ReservationByID(_ context.Context, id uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservation, ok := s.reservations[id]
	if !ok {
		return nil, errors.New("reservation not found")
	}
	copied := *reservation
	return &copied, nil
}

func (s *fakeStore) TransitionReservation(_ context.Context, id uuid.UUID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reservation, ok := s.reservations[id]
	if !ok || reservation.Status != from {
		return false, nil
	}
	reservation.Status = to
	return true, nil
}

func (s *fakeStore) DueReservations(_ context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Reservation
	for _, reservation := range s.reservations {
		if reservation.Status == models.ReservationHeld && !reservation.ExpiresAt.After(now) {
			due = append(due, *reservation)
			if limit > 0 && len(due) == limit {
				break
			}
		}
	}
	return due, nil
}

func (s *fakeStore) issued(eventID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuedCount[eventID]
}

func TestLedgerReserve(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()

	t.Run("holds seats and sets the TTL", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(eventID, 10)
		ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

		reservation, err := ledger.Reserve(context.Background(), eventID, 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if reservation.Status != models.ReservationHeld {
			t.Fatalf("expected status %s, got %s", models.ReservationHeld, reservation.Status)
		}
		if got, want := reservation.ExpiresAt, now.Add(15*time.Minute); !got.Equal(want) {
			t.Fatalf("expected expiry %v, got %v", want, got)
		}
		if store.issued(eventID) != 3 {
			t.Fatalf("expected 3 issued, got %d", store.issued(eventID))
		}
	})

	t.Run("rejects when capacity exhausted", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(eventID, 2)
		ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

		if _, err := ledger.Reserve(context.Background(), eventID, 3); !errors.Is(err, ErrOutOfStock) {
			t.Fatalf("expected ErrOutOfStock, got %v", err)
		}
		if store.issued(eventID) != 0 {
			t.Fatalf("failed reserve must not hold seats, issued=%d", store.issued(eventID))
		}
	})

	t.Run("rejects non-positive quantity", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(eventID, 2)
		ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

		if _, err := ledger.Reserve(context.Background(), eventID, 0); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})
}

func TestLedgerReserveConcurrent(t *testing.T) {
	eventID := uuid.New()
	store := newFakeStore()
	store.addEvent(eventID, 2)
	ledger := NewLedger(store, clock.System(), 15*time.Minute)

	const contenders = 2
	errs := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), eventID, 2)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrOutOfStock):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one winner and one OutOfStock, got won=%d lost=%d", won, lost)
	}
	if store.issued(eventID) != 2 {
		t.Fatalf("expected 2 issued seats, got %d", store.issued(eventID))
	}
}

func TestLedgerRelease(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()

	t.Run("returns seats exactly once", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(eventID, 5)
		ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

		reservation, err := ledger.Reserve(context.Background(), eventID, 2)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}

		if err := ledger.Release(context.Background(), reservation.ID); err != nil {
			t.Fatalf("release: %v", err)
		}
		if err := ledger.Release(context.Background(), reservation.ID); err != nil {
			t.Fatalf("second release must be a no-op, got %v", err)
		}
		if store.issued(eventID) != 0 {
			t.Fatalf("expected issued back to 0, got %d", store.issued(eventID))
		}
	})

	t.Run("never releases a committed reservation", func(t *testing.T) {
		store := newFakeStore()
		store.addEvent(eventID, 5)
		ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

		reservation, err := ledger.Reserve(context.Background(), eventID, 2)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if err := ledger.Commit(context.Background(), reservation.ID); err != nil {
			t.Fatalf("commit: %v", err)
		}
		if err := ledger.Release(context.Background(), reservation.ID); err != nil {
			t.Fatalf("release after commit must be a no-op, got %v", err)
		}
		if store.issued(eventID) != 2 {
			t.Fatalf("committed seats must stay issued, got %d", store.issued(eventID))
		}
	})
}

func TestLedgerCommitIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()
	store := newFakeStore()
	store.addEvent(eventID, 5)
	ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

	reservation, err := ledger.Reserve(context.Background(), eventID, 1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := ledger.Commit(context.Background(), reservation.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := ledger.Commit(context.Background(), reservation.ID); err != nil {
		t.Fatalf("second commit must be a no-op, got %v", err)
	}

}

func TestLedgerCommitReleasedFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()
	store := newFakeStore()
	store.addEvent(eventID, 5)
	ledger := NewLedger(store, clock.NewManual(now), 15*time.Minute)

	reservation, err := ledger.Reserve(context.Background(), eventID, 1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.Release(context.Background(), reservation.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := ledger.Commit(context.Background(), reservation.ID); err == nil {
		t.Fatal("committing a released hold must fail")
	}
}

func TestLedgerDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eventID := uuid.New()
	store := newFakeStore()
	store.addEvent(eventID, 5)
	clk := clock.NewManual(now)
	ledger := NewLedger(store, clk, 10*time.Minute)

	reservation, err := ledger.Reserve(context.Background(), eventID, 1)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	due, err := ledger.Due(context.Background(), 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("nothing should be due yet, got %d", len(due))
	}

	clk.Advance(11 * time.Minute)
	due, err = ledger.Due(context.Background(), 0)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != reservation.ID {
		t.Fatalf("expected the expired reservation, got %+v", due)
	}
}
