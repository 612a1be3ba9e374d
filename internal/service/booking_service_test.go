package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"booking-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestBookingService(t *testing.T, events EventBus, cache AvailabilityCache) (*BookingService, *models.InventoryItem) {
	t.Helper()
	repo := setupRepo(t)
	svc := NewBookingService(repo, events, cache, BookingOptions{HoldDuration: 30 * time.Minute}, zap.NewNop())
	return svc, seedItem(t, repo, 5)
}

var testUser = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

func input(itemID uuid.UUID, qty int32, key string) CreateBookingInput {
	return CreateBookingInput{UserID: testUser, ItemID: itemID, Quantity: qty, IdempotencyKey: key}
}

func TestCreateBooking_Validation(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateBookingInput
		want error
	}{
		{"empty key", input(item.ID, 1, "  "), ErrIdempotencyKeyRequired},
		{"long key", input(item.ID, 1, strings.Repeat("k", 81)), ErrIdempotencyKeyTooLong},
		{"zero qty", input(item.ID, 0, "k-zero"), ErrInvalidQuantity},
		{"negative qty", input(item.ID, -2, "k-neg"), ErrInvalidQuantity},
		{"unknown item", input(uuid.New(), 1, "k-missing"), ErrItemNotFound},
		{"no user", CreateBookingInput{ItemID: item.ID, Quantity: 1, IdempotencyKey: "k-anon"}, ErrUnauthorized},
		{"too many", input(item.ID, 6, "k-many"), ErrInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateBooking(ctx, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if got := mustItem(t, svc.repo, item.ID); got.Available != 5 || got.Version != 0 {
		t.Fatalf("rejected requests must not touch the ledger, got %+v", got)
	}
}

func TestCreateBooking_UserFromContext(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	uid := uuid.New()
	ctx := WithUserID(context.Background(), uid)

	b, err := svc.CreateBooking(ctx, CreateBookingInput{ItemID: item.ID, Quantity: 1, IdempotencyKey: "ctx-user"})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if b.UserID != uid {
		t.Fatalf("expected user %s, got %s", uid, b.UserID)
	}
}

func TestCreateBooking_Pending(t *testing.T) {
	bus := &recordingBus{}
	cache := newMemCache()
	svc, item := newTestBookingService(t, bus, cache)
	fixed := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	b, err := svc.CreateBooking(context.Background(), input(item.ID, 2, "k-1"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if b.Status != models.BookingPending {
		t.Fatalf("expected PENDING_PAYMENT, got %s", b.Status)
	}
	if b.ExpiresAt == nil || !b.ExpiresAt.Equal(fixed.Add(30*time.Minute)) {
		t.Fatalf("expected expiry now+30m, got %v", b.ExpiresAt)
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 3 {
		t.Fatalf("expected available=3, got %d", got.Available)
	}
	if types := bus.types(); len(types) != 1 || types[0] != EventBookingCreated {
		t.Fatalf("expected booking.created event, got %v", types)
	}
	if cache.invalidated != 1 {
		t.Fatalf("expected cache invalidation, got %d", cache.invalidated)
	}
}

func TestCreateBooking_IdempotentReplay(t *testing.T) {
	bus := &recordingBus{}
	svc, item := newTestBookingService(t, bus, nil)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, input(item.ID, 1, "same"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	for i := 0; i < 3; i++ {
		// другие параметры не меняют результат
		again, err := svc.CreateBooking(ctx, input(item.ID, 3, "same"))
		if err != nil {
			t.Fatalf("replay %d: %v", i, err)
		}
		if again.ID != first.ID || again.Quantity != 1 {
			t.Fatalf("expected stored booking, got %+v", again)
		}
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 4 {
		t.Fatalf("expected a single reservation, available=%d", got.Available)
	}
	if n := len(bus.types()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}

func TestCreateBooking_KeyOfAnotherUserConflicts(t *testing.T) {
	bus := &recordingBus{}
	svc, item := newTestBookingService(t, bus, nil)
	ctx := context.Background()

	first, err := svc.CreateBooking(ctx, input(item.ID, 2, "shared"))
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	other := input(item.ID, 2, "shared")
	other.UserID = uuid.New()
	got, err := svc.CreateBooking(ctx, other)
	if !errors.Is(err, ErrIdempotencyKeyConflict) {
		t.Fatalf("expected ErrIdempotencyKeyConflict, got %v", err)
	}
	if got != nil {
		t.Fatalf("foreign booking must not be returned, got %+v", got)
	}

	// владелец ключа по-прежнему получает свою бронь
	again, err := svc.CreateBooking(ctx, input(item.ID, 2, "shared"))
	if err != nil || again.ID != first.ID {
		t.Fatalf("owner replay: %+v, %v", again, err)
	}
	if avail := mustItem(t, svc.repo, item.ID).Available; avail != 3 {
		t.Fatalf("expected a single reservation, available=%d", avail)
	}
	if n := len(bus.types()); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
}

func TestCreateBooking_ConcurrentSameKeyConverges(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	const callers = 10
	user := uuid.New()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uuid.UUID]int{}
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			b, err := svc.CreateBooking(context.Background(), CreateBookingInput{
				UserID: user, ItemID: item.ID, Quantity: 1, IdempotencyKey: "race-key",
			})
			if err != nil {
				t.Errorf("CreateBooking: %v", err)
				return
			}
			mu.Lock()
			ids[b.ID]++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if len(ids) != 1 {
		t.Fatalf("expected all callers to get one booking, got %d distinct", len(ids))
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 4 {
		t.Fatalf("expected exactly one unit reserved, available=%d", got.Available)
	}
}

func TestCreateBooking_ExhaustionUnderContention(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		ok, rejected  int
		unexpectedErr error
	)
	start := make(chan struct{})
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.CreateBooking(context.Background(), input(item.ID, 1, uuid.NewString()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				unexpectedErr = err
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if unexpectedErr != nil {
		t.Fatalf("unexpected error: %v", unexpectedErr)
	}
	if ok != 5 || rejected != 1 {
		t.Fatalf("expected 5 ok / 1 insufficient, got %d / %d", ok, rejected)
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 0 {
		t.Fatalf("expected available=0, got %d", got.Available)
	}
}

func TestExpire_ReclaimsQuantity(t *testing.T) {
	bus := &recordingBus{}
	svc, item := newTestBookingService(t, bus, nil)
	ctx := context.Background()

	// бронь, созданная час назад, уже просрочена
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	b, err := svc.CreateBooking(ctx, input(item.ID, 3, "stale"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	svc.now = time.Now

	if got := mustItem(t, svc.repo, item.ID); got.Available != 2 {
		t.Fatalf("expected available=2 before reclaim, got %d", got.Available)
	}

	pending, err := svc.ListExpiredPending(ctx, 100)
	if err != nil || len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("ListExpiredPending: %+v, %v", pending, err)
	}

	expired, err := svc.Expire(ctx, b.ID)
	if err != nil || !expired {
		t.Fatalf("Expire: expired=%v err=%v", expired, err)
	}

	got, _ := svc.GetBooking(ctx, b.ID)
	if got.Status != models.BookingExpired || got.ExpiresAt != nil {
		t.Fatalf("expected EXPIRED with no expiry, got %+v", got)
	}
	if item := mustItem(t, svc.repo, item.ID); item.Available != 5 {
		t.Fatalf("expected available restored to 5, got %d", item.Available)
	}

	// Повторный reclaim ничего не делает
	expired, err = svc.Expire(ctx, b.ID)
	if err != nil || expired {
		t.Fatalf("second Expire: expired=%v err=%v", expired, err)
	}
	if item := mustItem(t, svc.repo, item.ID); item.Available != 5 {
		t.Fatalf("double expire must not release twice, got %d", item.Available)
	}

	types := bus.types()
	if len(types) != 2 || types[1] != EventBookingExpired {
		t.Fatalf("expected created+expired events, got %v", types)
	}
}

func TestExpire_SkipsUnexpiredAndUnknown(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, input(item.ID, 1, "fresh"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	expired, err := svc.Expire(ctx, b.ID)
	if err != nil || expired {
		t.Fatalf("expected fresh booking to be skipped, expired=%v err=%v", expired, err)
	}
	if _, err := svc.Expire(ctx, uuid.New()); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestConfirm_RoundTrip(t *testing.T) {
	bus := &recordingBus{}
	svc, item := newTestBookingService(t, bus, nil)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, input(item.ID, 2, "pay-ok"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	confirmed, err := svc.Confirm(ctx, b.ID, PaymentInfo{ProviderRef: "psp-1"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != models.BookingConfirmed || confirmed.ExpiresAt != nil {
		t.Fatalf("expected CONFIRMED with cleared expiry, got %+v", confirmed)
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 3 {
		t.Fatalf("confirm must keep units deducted, available=%d", got.Available)
	}

	p, err := svc.repo.Payments.GetByBooking(ctx, b.ID)
	if err != nil || p == nil || p.Status != models.PaymentSucceeded || p.ProviderRef != "psp-1" {
		t.Fatalf("expected SUCCEEDED payment, got %+v, %v", p, err)
	}

	// Повторное подтверждение — no-op
	again, err := svc.Confirm(ctx, b.ID, PaymentInfo{ProviderRef: "psp-2"})
	if err != nil || again.Status != models.BookingConfirmed {
		t.Fatalf("second Confirm: %+v, %v", again, err)
	}

	// Отмена подтверждённой — no-op, остаток не трогаем
	cancelled, err := svc.Cancel(ctx, b.ID, "user changed mind")
	if err != nil || cancelled.Status != models.BookingConfirmed {
		t.Fatalf("Cancel on confirmed: %+v, %v", cancelled, err)
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 3 {
		t.Fatalf("cancel on confirmed must not release, available=%d", got.Available)
	}

	types := bus.types()
	if len(types) != 2 || types[1] != EventBookingConfirmed {
		t.Fatalf("expected created+confirmed events, got %v", types)
	}
}

func TestConfirm_AfterExpiryIsFinalized(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	b, err := svc.CreateBooking(ctx, input(item.ID, 1, "late-pay"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	svc.now = time.Now

	if ok, err := svc.Expire(ctx, b.ID); err != nil || !ok {
		t.Fatalf("Expire: %v %v", ok, err)
	}

	if _, err := svc.Confirm(ctx, b.ID, PaymentInfo{ProviderRef: "late"}); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}
	got, _ := svc.GetBooking(ctx, b.ID)
	if got.Status != models.BookingExpired {
		t.Fatalf("late payment must not resurrect booking, got %s", got.Status)
	}
	if p, _ := svc.repo.Payments.GetByBooking(ctx, b.ID); p != nil {
		t.Fatalf("expected no payment row for rejected confirm, got %+v", p)
	}

	// Отмена терминальной — no-op
	cancelled, err := svc.Cancel(ctx, b.ID, "late")
	if err != nil || cancelled.Status != models.BookingExpired {
		t.Fatalf("Cancel on expired: %+v, %v", cancelled, err)
	}
	if got := mustItem(t, svc.repo, item.ID); got.Available != 5 {
		t.Fatalf("expected available=5, got %d", got.Available)
	}
}

func TestConfirm_UnknownBooking(t *testing.T) {
	svc, _ := newTestBookingService(t, nil, nil)
	if _, err := svc.Confirm(context.Background(), uuid.New(), PaymentInfo{}); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), uuid.New(), ""); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound, got %v", err)
	}
}

func TestHandleOutcome(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	ctx := context.Background()

	failed, err := svc.CreateBooking(ctx, input(item.ID, 2, "outcome-fail"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	paid, err := svc.CreateBooking(ctx, input(item.ID, 1, "outcome-ok"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	b, err := svc.HandleOutcome(ctx, PaymentOutcome{BookingID: failed.ID, Outcome: OutcomeFailed, ProviderRef: "psp-f", Reason: "card declined"})
	if err != nil || b.Status != models.BookingCancelled {
		t.Fatalf("FAILED outcome: %+v, %v", b, err)
	}
	p, _ := svc.repo.Payments.GetByBooking(ctx, failed.ID)
	if p == nil || p.Status != models.PaymentFailed || p.Reason != "card declined" {
		t.Fatalf("expected FAILED payment, got %+v", p)
	}

	b, err = svc.HandleOutcome(ctx, PaymentOutcome{BookingID: paid.ID, Outcome: OutcomeConfirmed, ProviderRef: "psp-ok"})
	if err != nil || b.Status != models.BookingConfirmed {
		t.Fatalf("CONFIRMED outcome: %+v, %v", b, err)
	}

	// 5 - 2 - 1 + 2 (отмена вернула)
	if got := mustItem(t, svc.repo, item.ID); got.Available != 4 {
		t.Fatalf("expected available=4, got %d", got.Available)
	}

	if _, err := svc.HandleOutcome(ctx, PaymentOutcome{BookingID: paid.ID, Outcome: "REFUNDED"}); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome, got %v", err)
	}
}

func TestConfirmAndExpireRace_OneWins(t *testing.T) {
	svc, item := newTestBookingService(t, nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
		b, err := svc.CreateBooking(ctx, input(item.ID, 1, uuid.NewString()))
		if err != nil {
			t.Fatalf("CreateBooking: %v", err)
		}
		svc.now = time.Now

		var (
			wg         sync.WaitGroup
			confirmErr error
			expired    bool
			expireErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, confirmErr = svc.Confirm(ctx, b.ID, PaymentInfo{})
		}()
		go func() {
			defer wg.Done()
			expired, expireErr = svc.Expire(ctx, b.ID)
		}()
		wg.Wait()

		if expireErr != nil {
			t.Fatalf("Expire: %v", expireErr)
		}
		got, _ := svc.GetBooking(ctx, b.ID)
		switch got.Status {
		case models.BookingConfirmed:
			if confirmErr != nil || expired {
				t.Fatalf("confirm won but confirmErr=%v expired=%v", confirmErr, expired)
			}
		case models.BookingExpired:
			if !errors.Is(confirmErr, ErrAlreadyFinalized) || !expired {
				t.Fatalf("expire won but confirmErr=%v expired=%v", confirmErr, expired)
			}
		default:
			t.Fatalf("unexpected status %s", got.Status)
		}
	}

	got := mustItem(t, svc.repo, item.ID)
	if got.Available < 0 || got.Available > got.TotalCapacity {
		t.Fatalf("available out of bounds: %d", got.Available)
	}
}

func TestBookingService_WritesGoThroughLedger(t *testing.T) {
	repo := setupRepo(t)
	cache := newMemCache()
	svc := NewBookingService(repo, nil, cache, BookingOptions{MaxAttempts: 3}, zap.NewNop())
	if svc.ledger == nil || svc.ledger.maxAttempts != 3 {
		t.Fatalf("expected ledger with 3 attempts, got %+v", svc.ledger)
	}
	item := seedItem(t, repo, 5)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, input(item.ID, 2, "via-ledger"))
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if _, err := svc.Cancel(ctx, b.ID, "test"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cache.invalidated != 2 {
		t.Fatalf("expected ledger to invalidate availability twice, got %d", cache.invalidated)
	}

	// прямой возврат через тот же ledger не раздувает остаток выше ёмкости
	got, err := svc.ledger.Release(ctx, item.ID, 2)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got.Available != 5 {
		t.Fatalf("expected available=5, got %d", got.Available)
	}
}
