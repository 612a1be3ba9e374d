package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"booking-service/internal/metrics"
	"booking-service/internal/models"
	"booking-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultHoldDuration = 30 * time.Minute

// BookingService ведёт бронь от создания до терминального статуса:
// создание с ключом идемпотентности, подтверждение/отмена по оплате, истечение.
type BookingService struct {
	repo   *repository.Repository
	ledger *Ledger
	events EventBus
	hold   time.Duration
	log    *zap.Logger
	now    func() time.Time
}

var (
	_ ReservationService = (*BookingService)(nil)
	_ PaymentService     = (*BookingService)(nil)
)

func NewBookingService(repo *repository.Repository, events EventBus, cache AvailabilityCache, opts BookingOptions, log *zap.Logger) *BookingService {
	if opts.HoldDuration <= 0 {
		opts.HoldDuration = defaultHoldDuration
	}
	return &BookingService{
		repo:   repo,
		ledger: NewLedger(repo, cache, opts.MaxAttempts, log),
		events: events,
		hold:   opts.HoldDuration,
		log:    log,
		now:    time.Now,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*models.Booking, error) {
	if in.UserID == uuid.Nil {
		uid, err := requireUser(ctx)
		if err != nil {
			return nil, err
		}
		in.UserID = uid
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	switch {
	case key == "":
		return nil, ErrIdempotencyKeyRequired
	case len(key) > maxIdempotencyKeyLen:
		return nil, ErrIdempotencyKeyTooLong
	case in.Quantity <= 0:
		return nil, ErrInvalidQuantity
	}

	var (
		booking *models.Booking
		replay  bool
	)

	err := s.ledger.retry(ctx, "create_booking", func() error {
		booking, replay = nil, false

		// повторная попытка могла проиграть гонку запросу с тем же ключом
		existing, err := s.repo.Bookings.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			booking, replay = existing, true
			return nil
		}

		return s.repo.WithTx(ctx, func(tx *repository.Repository) error {
			if _, err := s.ledger.reserveIn(ctx, tx, in.ItemID, in.Quantity); err != nil {
				return err
			}

			expiresAt := s.now().UTC().Add(s.hold)
			b := &models.Booking{
				ID:             uuid.New(),
				UserID:         in.UserID,
				ItemID:         in.ItemID,
				Quantity:       in.Quantity,
				Status:         models.BookingPending,
				ExpiresAt:      &expiresAt,
				IdempotencyKey: key,
			}
			if err := tx.Bookings.Create(ctx, b); err != nil {
				return err
			}
			booking = b
			return nil
		})
	})

	if errors.Is(err, repository.ErrDuplicateKey) {
		// параллельный запрос с тем же ключом закоммитил первым; наше списание откатилось
		winner, rerr := s.repo.Bookings.GetByIdempotencyKey(ctx, key)
		if rerr != nil {
			return nil, rerr
		}
		if winner == nil {
			return nil, err
		}
		booking, replay, err = winner, true, nil
	}
	if err != nil {
		metrics.TrackBooking("create", errorResult(err))
		if errors.Is(err, ErrConcurrencyExhausted) {
			s.log.Warn("Исчерпаны попытки резервирования",
				zap.String("item_id", in.ItemID.String()),
				zap.Int("max_attempts", s.ledger.maxAttempts),
			)
		}
		return nil, err
	}

	if replay {
		if booking.UserID != in.UserID {
			metrics.TrackBooking("create", "key_conflict")
			s.log.Warn("Ключ идемпотентности занят бронью другого пользователя",
				zap.String("idempotency_key", key),
				zap.String("user_id", in.UserID.String()),
			)
			return nil, ErrIdempotencyKeyConflict
		}
		metrics.TrackBooking("create", "replay")
		if booking.ItemID != in.ItemID || booking.Quantity != in.Quantity {
			s.log.Warn("Повтор ключа идемпотентности с другими параметрами, возвращаем сохранённую бронь",
				zap.String("booking_id", booking.ID.String()),
				zap.String("idempotency_key", key),
			)
		}
		return booking, nil
	}

	metrics.TrackBooking("create", "ok")
	s.log.Info("Бронь создана",
		zap.String("booking_id", booking.ID.String()),
		zap.String("item_id", booking.ItemID.String()),
		zap.Int32("quantity", booking.Quantity),
	)
	s.afterCommit(ctx, EventBookingCreated, booking, "")
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := s.repo.Bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

func (s *BookingService) ListExpiredPending(ctx context.Context, limit int) ([]models.Booking, error) {
	return s.repo.Bookings.ListExpiredPending(ctx, s.now().UTC(), limit)
}

func (s *BookingService) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	now := s.now().UTC()
	b, changed, err := s.releaseTransition(ctx, id, repository.Transition{
		From:          models.BookingPending,
		To:            models.BookingExpired,
		ExpiredBefore: &now,
	}, nil)
	if err != nil {
		metrics.TrackBooking("expire", errorResult(err))
		return false, err
	}
	if !changed {
		return false, nil
	}

	metrics.TrackBooking("expire", "ok")
	s.afterCommit(ctx, EventBookingExpired, b, "hold expired")
	return true, nil
}

func (s *BookingService) Confirm(ctx context.Context, bookingID uuid.UUID, info PaymentInfo) (*models.Booking, error) {
	var (
		booking *models.Booking
		changed bool
	)

	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		booking, changed = nil, false

		b, err := tx.Bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return ErrBookingNotFound
		}

		if b.Status == models.BookingPending {
			ok, err := tx.Bookings.Transition(ctx, bookingID, repository.Transition{
				From: models.BookingPending,
				To:   models.BookingConfirmed,
			})
			if err != nil {
				return err
			}
			if ok {
				if _, err := tx.Payments.Record(ctx, &models.Payment{
					BookingID:   bookingID,
					Status:      models.PaymentSucceeded,
					ProviderRef: info.ProviderRef,
				}); err != nil {
					return err
				}
				b.Status = models.BookingConfirmed
				b.ExpiresAt = nil
				booking, changed = b, true
				return nil
			}
			// между чтением и записью бронь успели завершить
			if b, err = tx.Bookings.GetByID(ctx, bookingID); err != nil {
				return err
			}
			if b == nil {
				return ErrBookingNotFound
			}
		}

		booking = b
		switch b.Status {
		case models.BookingConfirmed:
			return nil
		case models.BookingExpired, models.BookingCancelled:
			return ErrAlreadyFinalized
		}
		return nil
	})

	if errors.Is(err, ErrAlreadyFinalized) {
		metrics.TrackBooking("confirm", "already_finalized")
		s.log.Warn("Оплата пришла после завершения брони, требуется сверка",
			zap.String("booking_id", bookingID.String()),
			zap.String("status", string(booking.Status)),
			zap.String("provider_ref", info.ProviderRef),
		)
		return nil, err
	}
	if err != nil {
		metrics.TrackBooking("confirm", errorResult(err))
		return nil, err
	}
	if !changed {
		metrics.TrackBooking("confirm", "noop")
		return booking, nil
	}

	metrics.TrackBooking("confirm", "ok")
	s.log.Info("Бронь подтверждена", zap.String("booking_id", bookingID.String()))
	s.afterCommit(ctx, EventBookingConfirmed, booking, "")
	return booking, nil
}

func (s *BookingService) Cancel(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, error) {
	return s.cancel(ctx, bookingID, reason, nil)
}

func (s *BookingService) HandleOutcome(ctx context.Context, o PaymentOutcome) (*models.Booking, error) {
	var (
		b   *models.Booking
		err error
	)
	switch o.Outcome {
	case OutcomeConfirmed:
		b, err = s.Confirm(ctx, o.BookingID, PaymentInfo{ProviderRef: o.ProviderRef})
	case OutcomeFailed:
		reason := o.Reason
		if reason == "" {
			reason = "payment failed"
		}
		b, err = s.cancel(ctx, o.BookingID, reason, &models.Payment{
			Status:      models.PaymentFailed,
			ProviderRef: o.ProviderRef,
			Reason:      reason,
		})
	default:
		metrics.TrackPaymentOutcome(string(o.Outcome), "invalid")
		return nil, ErrInvalidOutcome
	}

	metrics.TrackPaymentOutcome(string(o.Outcome), errorResult(err))
	return b, err
}

func (s *BookingService) cancel(ctx context.Context, bookingID uuid.UUID, reason string, payment *models.Payment) (*models.Booking, error) {
	b, changed, err := s.releaseTransition(ctx, bookingID, repository.Transition{
		From: models.BookingPending,
		To:   models.BookingCancelled,
	}, payment)
	if err != nil {
		metrics.TrackBooking("cancel", errorResult(err))
		return nil, err
	}
	if !changed {
		metrics.TrackBooking("cancel", "noop")
		return b, nil
	}

	metrics.TrackBooking("cancel", "ok")
	s.log.Info("Бронь отменена",
		zap.String("booking_id", bookingID.String()),
		zap.String("reason", reason),
	)
	s.afterCommit(ctx, EventBookingCancelled, b, reason)
	return b, nil
}

// releaseTransition переводит бронь из PENDING_PAYMENT и возвращает её количество
// в остаток одной транзакцией. changed=false — бронь уже была не в ожидании.
func (s *BookingService) releaseTransition(ctx context.Context, id uuid.UUID, t repository.Transition, payment *models.Payment) (*models.Booking, bool, error) {
	var (
		booking *models.Booking
		changed bool
	)

	err := s.ledger.retry(ctx, strings.ToLower(string(t.To)), func() error {
		booking, changed = nil, false

		return s.repo.WithTx(ctx, func(tx *repository.Repository) error {
			b, err := tx.Bookings.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if b == nil {
				return ErrBookingNotFound
			}

			ok, err := tx.Bookings.Transition(ctx, id, t)
			if err != nil {
				return err
			}
			if !ok {
				cur, err := tx.Bookings.GetByID(ctx, id)
				if err != nil {
					return err
				}
				booking = cur
				return nil
			}

			if _, err := s.ledger.releaseIn(ctx, tx, b.ItemID, b.Quantity); err != nil {
				return err
			}
			if payment != nil {
				p := *payment
				p.BookingID = id
				if _, err := tx.Payments.Record(ctx, &p); err != nil {
					return err
				}
			}

			b.Status = t.To
			b.ExpiresAt = nil
			booking, changed = b, true
			return nil
		})
	})
	return booking, changed, err
}

func (s *BookingService) afterCommit(ctx context.Context, typ BookingEventType, b *models.Booking, reason string) {
	s.ledger.invalidate(ctx, b.ItemID)

	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingEvent(context.WithoutCancel(ctx), BookingEvent{
		Type:       typ,
		BookingID:  b.ID,
		UserID:     b.UserID,
		ItemID:     b.ItemID,
		Quantity:   b.Quantity,
		Status:     string(b.Status),
		Reason:     reason,
		ExpiresAt:  b.ExpiresAt,
		OccurredAt: s.now().UTC(),
	}); err != nil {
		s.log.Warn("Не удалось опубликовать событие брони",
			zap.String("type", string(typ)),
			zap.String("booking_id", b.ID.String()),
			zap.Error(err),
		)
	}
}

func errorResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrConcurrencyExhausted):
		return "exhausted"
	case errors.Is(err, ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrBookingNotFound):
		return "not_found"
	default:
		return "error"
	}
}
