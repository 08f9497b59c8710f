package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/messaging"
	"github.com/spec-kit/vending-service/internal/observability"
	"github.com/spec-kit/vending-service/internal/store"
	"github.com/spec-kit/vending-service/internal/store/memory"
	"github.com/spec-kit/vending-service/internal/token"
)

type receiptCall struct {
	To      string
	OrderID string
	Door    int
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []receiptCall
	err   error
}

func (f *fakeNotifier) SendReceipt(_ context.Context, to, orderID string, door int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, receiptCall{to, orderID, door})
	return nil
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type confirmationFixture struct {
	tokens   *token.Manager
	store    *memory.Store
	notifier *fakeNotifier
	metrics  *observability.Metrics
	svc      *ConfirmationService
}

func newConfirmationFixture(t *testing.T) *confirmationFixture {
	t.Helper()
	f := &confirmationFixture{
		tokens:   token.NewManager("secret", 30*time.Second),
		store:    memory.New(),
		notifier: &fakeNotifier{},
		metrics:  observability.NewMetrics(),
	}
	f.svc = NewConfirmationService(f.tokens, f.store, f.notifier, zap.NewNop(), f.metrics)
	return f
}

// issue mints a token and persists its record, mirroring the unlock path.
func (f *confirmationFixture) issue(t *testing.T, orderID string, door int, email string) string {
	t.Helper()
	tok, expiresAt, err := f.tokens.Issue(orderID, door)
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), tok, store.Record{
		OrderID:   orderID,
		Door:      door,
		Email:     email,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}))
	return tok
}

func doorOpen(orderID string, door int, tok string) messaging.DoorOpenEvent {
	return messaging.DoorOpenEvent{
		Door:      door,
		OrderID:   orderID,
		Token:     tok,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func (f *confirmationFixture) record(t *testing.T, tok string) store.Record {
	t.Helper()
	rec, found, err := f.store.Get(context.Background(), tok)
	require.NoError(t, err)
	require.True(t, found)
	return rec
}

func TestConfirmationAcceptedExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	tok := f.issue(t, "order-1", 1, "buyer@example.com")
	evt := doorOpen("order-1", 1, tok)

	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", evt)
	require.True(t, f.record(t, tok).Consumed)
	require.Equal(t, 1, f.notifier.callCount())
	require.Equal(t, receiptCall{"buyer@example.com", "order-1", 1}, f.notifier.calls[0])
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("accepted"))

	// Replaying the identical event is rejected; no second receipt.
	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", evt)
	require.Equal(t, 1, f.notifier.callCount())
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("accepted"))
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("already_consumed"))
}

func TestConfirmationMissingToken(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 1, ""))

	require.Zero(t, f.notifier.callCount())
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("missing_token"))
}

func TestConfirmationNeverIssuedToken(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)

	// Validly signed but never persisted: the store is the authority on
	// single-use state, so the event is rejected.
	tok, _, err := f.tokens.Issue("order-1", 1)
	require.NoError(t, err)

	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 1, tok))
	require.Zero(t, f.notifier.callCount())
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("unknown_token"))
}

func TestConfirmationClaimMismatch(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	tok := f.issue(t, "order-1", 1, "buyer@example.com")

	t.Run("wrong door", func(t *testing.T) {
		f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 2, tok))
	})
	t.Run("wrong order", func(t *testing.T) {
		f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-2", 1, tok))
	})

	require.False(t, f.record(t, tok).Consumed)
	require.Zero(t, f.notifier.callCount())
	require.EqualValues(t, 2, f.metrics.ConfirmationCount("claim_mismatch"))
}

func TestConfirmationExpiredToken(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)

	// A token past its embedded expiry, still present in the store
	// because the sweep has not run yet.
	claims := &token.Claims{
		OrderID: "order-1",
		Door:    1,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-2 * time.Second)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-32 * time.Second)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	require.NoError(t, f.store.Put(context.Background(), tok, store.Record{
		OrderID:   "order-1",
		Door:      1,
		ExpiresAt: time.Now().Add(-2 * time.Second),
	}))

	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 1, tok))

	require.False(t, f.record(t, tok).Consumed)
	require.Zero(t, f.notifier.callCount())
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("unverified_token"))
}

func TestConfirmationNotificationFailureKeepsConsumed(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	f.notifier.err = errors.New("sendgrid returned status 500")
	tok := f.issue(t, "order-1", 1, "buyer@example.com")

	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 1, tok))

	// The door already opened; the token stays spent regardless of the
	// notification outcome.
	require.True(t, f.record(t, tok).Consumed)
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("accepted"))
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("notification_failed"))
}

func TestConfirmationNoEmailOnRecord(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	tok := f.issue(t, "order-1", 1, "")

	f.svc.HandleDoorOpen(context.Background(), "esp-test-1", doorOpen("order-1", 1, tok))

	require.True(t, f.record(t, tok).Consumed)
	require.Zero(t, f.notifier.callCount())
}

func TestConfirmationConcurrentReplay(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	tok := f.issue(t, "order-1", 1, "buyer@example.com")
	evt := doorOpen("order-1", 1, tok)

	const attempts = 16
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.HandleDoorOpen(context.Background(), "esp-test-1", evt)
		}()
	}
	wg.Wait()

	require.True(t, f.record(t, tok).Consumed)
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("accepted"))
	require.Equal(t, 1, f.notifier.callCount())
}

func TestUnlockThenConfirmEndToEnd(t *testing.T) {
	t.Parallel()

	f := newConfirmationFixture(t)
	pub := &fakePublisher{}
	unlock := NewUnlockService(testDirectory(), f.tokens, f.store, pub, 1000, zap.NewNop())

	tok, err := unlock.Unlock(context.Background(), "order-1", 1, "buyer@example.com")
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	require.Equal(t, "esp-test-1", pub.calls[0].DeviceID)

	evt := doorOpen("order-1", 1, tok)
	f.svc.HandleDoorOpen(context.Background(), pub.calls[0].DeviceID, evt)
	require.True(t, f.record(t, tok).Consumed)
	require.Equal(t, 1, f.notifier.callCount())

	f.svc.HandleDoorOpen(context.Background(), pub.calls[0].DeviceID, evt)
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("accepted"))
	require.EqualValues(t, 1, f.metrics.ConfirmationCount("already_consumed"))
}
