package reclaim

import (
	"context"
	"time"

	"booking-service/internal/metrics"
	"booking-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultBatchSize = 100

// Expirer — часть сервиса броней, нужная для reclaim.
type Expirer interface {
	ListExpiredPending(ctx context.Context, limit int) ([]models.Booking, error)
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
}

type SweepResult struct {
	Selected int
	Expired  int
	Skipped  int // бронь успели подтвердить или отменить после выборки
	Failed   int
}

type Sweeper struct {
	bookings  Expirer
	batchSize int
	log       *zap.Logger
}

func NewSweeper(bookings Expirer, batchSize int, log *zap.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sweeper{bookings: bookings, batchSize: batchSize, log: log}
}

// Sweep возвращает в остаток просроченные брони, старые первыми.
// Ошибка по одной брони не прерывает пачку: бронь останется в выборке до следующего прохода.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	defer func() { metrics.TrackSweep(time.Since(started)) }()

	batch, err := s.bookings.ListExpiredPending(ctx, s.batchSize)
	if err != nil {
		s.log.Error("failed to select expired bookings", zap.Error(err))
		return SweepResult{}, err
	}

	res := SweepResult{Selected: len(batch)}
	for _, b := range batch {
		if ctx.Err() != nil {
			break
		}
		expired, err := s.bookings.Expire(ctx, b.ID)
		switch {
		case err != nil:
			res.Failed++
			s.log.Error("failed to expire booking",
				zap.String("booking_id", b.ID.String()),
				zap.Error(err),
			)
		case expired:
			res.Expired++
		default:
			res.Skipped++
		}
	}

	metrics.TrackReclaim("expired", res.Expired)
	metrics.TrackReclaim("skipped", res.Skipped)
	metrics.TrackReclaim("failed", res.Failed)

	if res.Selected > 0 {
		s.log.Info("expiry sweep finished",
			zap.Int("selected", res.Selected),
			zap.Int("expired", res.Expired),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
			zap.Duration("took", time.Since(started)),
		)
	}
	return res, ctx.Err()
}
