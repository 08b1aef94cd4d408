// Package reservations manages holds on copies that are currently out.
package reservations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nta-library/library-service/internal/app/domain/reservation"
	"github.com/nta-library/library-service/internal/app/metrics"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/pkg/logger"
)

var (
	// ErrBookAvailable is returned when reserving a copy that is on the shelf.
	ErrBookAvailable = errors.New("book is available, borrow it instead")
	// ErrDuplicateReservation is returned when the member already holds an
	// active reservation on the copy.
	ErrDuplicateReservation = errors.New("an active reservation already exists for this book")
	// ErrReservationClosed is returned when acting on a non-active reservation.
	ErrReservationClosed = errors.New("reservation is no longer active")
)

// DefaultHoldDays is how long a reservation stays active before expiring.
const DefaultHoldDays = 7

// Config tunes reservation policy.
type Config struct {
	HoldDays int
}

func (c Config) withDefaults() Config {
	if c.HoldDays <= 0 {
		c.HoldDays = DefaultHoldDays
	}
	return c
}

// Service manages reservation records.
type Service struct {
	books        storage.BookStore
	members      storage.MemberStore
	reservations storage.ReservationStore
	cfg          Config
	log          *logger.Logger
}

// New constructs a reservations service.
func New(books storage.BookStore, members storage.MemberStore, reservations storage.ReservationStore, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reservations")
	}
	return &Service{
		books:        books,
		members:      members,
		reservations: reservations,
		cfg:          cfg.withDefaults(),
		log:          log,
	}
}

// Reserve places a hold on a copy that is currently checked out.
func (s *Service) Reserve(ctx context.Context, bookID, memberID, notes string) (reservation.Reservation, error) {
	b, err := s.books.GetBook(ctx, bookID)
	if err != nil {
		return reservation.Reservation{}, fmt.Errorf("book validation failed: %w", err)
	}
	if b.Available {
		return reservation.Reservation{}, ErrBookAvailable
	}
	if _, err := s.members.GetMember(ctx, memberID); err != nil {
		return reservation.Reservation{}, fmt.Errorf("member validation failed: %w", err)
	}

	existing, err := s.reservations.ListReservations(ctx, storage.ReservationFilter{
		BookID:   bookID,
		MemberID: memberID,
		Status:   reservation.StatusActive,
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	if len(existing) > 0 {
		return reservation.Reservation{}, ErrDuplicateReservation
	}

	now := time.Now().UTC()
	created, err := s.reservations.CreateReservation(ctx, reservation.Reservation{
		BookID:     bookID,
		MemberID:   memberID,
		ReservedAt: now,
		ExpiresAt:  now.AddDate(0, 0, s.cfg.HoldDays),
		Status:     reservation.StatusActive,
		Notes:      strings.TrimSpace(notes),
	})
	if err != nil {
		return reservation.Reservation{}, err
	}
	s.log.WithField("reservation_id", created.ID).
		WithField("book_id", bookID).
		WithField("member_id", memberID).
		Info("reservation placed")
	return created, nil
}

// Cancel withdraws an active reservation. Staff pass an empty memberID to
// cancel on a member's behalf.
func (s *Service) Cancel(ctx context.Context, id, memberID string) (reservation.Reservation, error) {
	res, err := s.reservations.GetReservation(ctx, id)
	if err != nil {
		return reservation.Reservation{}, err
	}
	if memberID != "" && res.MemberID != memberID {
		return reservation.Reservation{}, fmt.Errorf("reservation %s not owned by member %s", id, memberID)
	}
	if res.Status != reservation.StatusActive {
		return reservation.Reservation{}, ErrReservationClosed
	}

	res.Status = reservation.StatusCancelled
	updated, err := s.reservations.UpdateReservation(ctx, res)
	if err != nil {
		return reservation.Reservation{}, err
	}
	s.log.WithField("reservation_id", id).Info("reservation cancelled")
	return updated, nil
}

// Get returns a single reservation.
func (s *Service) Get(ctx context.Context, id string) (reservation.Reservation, error) {
	return s.reservations.GetReservation(ctx, id)
}

// List returns reservations matching the filter.
func (s *Service) List(ctx context.Context, filter storage.ReservationFilter) ([]reservation.Reservation, error) {
	return s.reservations.ListReservations(ctx, filter)
}

// ExpiringWithin returns active reservations that lapse within d of now.
func (s *Service) ExpiringWithin(ctx context.Context, d time.Duration) ([]reservation.Reservation, error) {
	active, err := s.reservations.ListActiveReservations(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result := make([]reservation.Reservation, 0)
	for _, res := range active {
		if res.ExpiresWithin(now, d) {
			result = append(result, res)
		}
	}
	return result, nil
}

// ExpireLapsed transitions active reservations past their expiry to expired
// and returns the number changed.
func (s *Service) ExpireLapsed(ctx context.Context) (int, error) {
	active, err := s.reservations.ListActiveReservations(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	changed := 0
	for _, res := range active {
		if res.ExpiresAt.After(now) {
			continue
		}
		res.Status = reservation.StatusExpired
		if _, err := s.reservations.UpdateReservation(ctx, res); err != nil {
			s.log.WithError(err).Warnf("expire reservation %s failed", res.ID)
			continue
		}
		changed++
	}
	if changed > 0 {
		metrics.RecordReservationsExpired(changed)
		s.log.WithField("count", changed).Info("reservations expired")
	}
	return changed, nil
}
