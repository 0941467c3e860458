package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/prawira/gotix/internal/models"
)

// Store is the gorm-backed persistence layer shared by the engine
// components. Methods participate in an enclosing transaction when one has
// been opened with WithTx; otherwise they run against the pool directly.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

type txKey struct{}

// WithTx runs fn inside a database transaction. Nested calls reuse the
// transaction already carried by ctx so component methods compose.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// HoldSeats provisionally claims quantity seats with a single conditional
// update, the only place issued_count ever increases. It returns false when
// the event cannot satisfy the quantity.
func (s *Store) HoldSeats(ctx context.Context, eventID uuid.UUID, quantity int) (bool, error) {
	result := s.conn(ctx).Exec(
		"UPDATE events SET issued_count = issued_count + ?, updated_at = NOW() WHERE id = ? AND deleted_at IS NULL AND issued_count + ? <= total_seats",
		quantity, eventID, quantity,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ReturnSeats gives seats back to the event. The guard keeps issued_count
// from ever going negative.
func (s *Store) ReturnSeats(ctx context.Context, eventID uuid.UUID, quantity int) error {
	return s.conn(ctx).Exec(
		"UPDATE events SET issued_count = issued_count - ?, updated_at = NOW() WHERE id = ? AND issued_count >= ?",
		quantity, eventID, quantity,
	).Error
}

func (s *Store) EventByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := s.conn(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) CreateReservation(ctx context.Context, reservation *models.Reservation) error {
	return s.conn(ctx).Create(reservation).Error
}

func (s *Store) ReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	var reservation models.Reservation
	if err := s.conn(ctx).First(&reservation, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &reservation, nil
}

// TransitionReservation flips a reservation's status only when it still has
// the expected one, so concurrent releases and commits cannot both win.
func (s *Store) TransitionReservation(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result := s.conn(ctx).Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DueReservations lists held reservations whose TTL has elapsed.
func (s *Store) DueReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	var due []models.Reservation
	query := s.conn(ctx).
		Where("status = ? AND expires_at <= ?", models.ReservationHeld, now).
		Order("expires_at")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&due).Error; err != nil {
		return nil, err
	}
	return due, nil
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	return s.conn(ctx).Create(order).Error
}

func (s *Store) OrderByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.conn(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) OrderByReservationID(ctx context.Context, reservationID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.conn(ctx).First(&order, "reservation_id = ?", reservationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) OrderByProviderReference(ctx context.Context, provider, reference string) (*models.Order, error) {
	var order models.Order
	err := s.conn(ctx).First(&order, "provider = ? AND provider_reference = ?", provider, reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrder is the conditional state-machine step; a false return
// means another path already moved the order out of the expected state.
func (s *Store) TransitionOrder(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	result := s.conn(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) SetOrderPayment(ctx context.Context, id uuid.UUID, providerReference, redirectURL string) error {
	return s.conn(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"provider_reference": providerReference,
			"redirect_url":       redirectURL,
		}).Error
}

func (s *Store) MarkOrderNeedsReview(ctx context.Context, id uuid.UUID) error {
	return s.conn(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Update("needs_review", true).Error
}

// PendingOrderQuantity sums seats tied up in the user's unfinished orders
// for one event, counted against the lifetime ticket cap.
func (s *Store) PendingOrderQuantity(ctx context.Context, userID, eventID uuid.UUID) (int, error) {
	var total int64
	err := s.conn(ctx).Model(&models.Order{}).
		Where("user_id = ? AND event_id = ? AND status IN ?", userID, eventID,
			[]string{models.OrderPending, models.OrderAwaitingPayment}).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}

func (s *Store) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	return s.conn(ctx).Create(tickets).Error
}

func (s *Store) TicketsByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Ticket, error) {
	var tickets []models.Ticket
	if err := s.conn(ctx).Where("order_id = ?", orderID).Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) CountIssuedTickets(ctx context.Context, userID, eventID uuid.UUID) (int, error) {
	var count int64
	err := s.conn(ctx).Model(&models.Ticket{}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Count(&count).Error
	return int(count), err
}

// UserForUpdate loads the user under a row lock, serializing purchase
// attempts by the same user for the life of the transaction.
func (s *Store) UserForUpdate(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) TicketByID(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := s.conn(ctx).First(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id uuid.UUID) error {
	return s.conn(ctx).Delete(&models.Ticket{}, "id = ?", id).Error
}

// RecordCallback appends to the callback inbox. The insert must not abort an
// enclosing transaction on redelivery, so conflicts with idx_callback_dedupe
// are absorbed with ON CONFLICT DO NOTHING instead of surfacing as a unique
// violation. A false return means this exact (provider, reference, status)
// delivery was recorded before.
func (s *Store) RecordCallback(ctx context.Context, callback *models.PaymentCallback) (bool, error) {
	result := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(callback)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
