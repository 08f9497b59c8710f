package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/directory"
	"github.com/spec-kit/vending-service/internal/store"
	"github.com/spec-kit/vending-service/internal/store/memory"
	"github.com/spec-kit/vending-service/internal/token"
	apperrors "github.com/spec-kit/vending-service/pkg/util"
)

type publishCall struct {
	DeviceID   string
	Port       int
	OrderID    string
	Token      string
	DurationMs int
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (f *fakePublisher) SendUnlock(deviceID string, port int, orderID, tok string, durationMs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, publishCall{deviceID, port, orderID, tok, durationMs})
	return nil
}

func (f *fakePublisher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingStore counts writes so tests can assert that failed unlocks
// leave no record behind.
type recordingStore struct {
	store.Store
	puts int
}

func (r *recordingStore) Put(ctx context.Context, tok string, rec store.Record) error {
	r.puts++
	return r.Store.Put(ctx, tok, rec)
}

func testDirectory() *directory.Directory {
	return directory.New(map[int]directory.Mapping{
		1: {DeviceID: "esp-test-1", PortIndex: 0, ProductSKU: "SKU-ABC"},
	})
}

func TestUnlockIssuesAndPublishes(t *testing.T) {
	t.Parallel()

	st := memory.New()
	pub := &fakePublisher{}
	mgr := token.NewManager("secret", 30*time.Second)
	svc := NewUnlockService(testDirectory(), mgr, st, pub, 1000, zap.NewNop())

	tok, err := svc.Unlock(context.Background(), "order-1", 1, "buyer@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	require.Len(t, pub.calls, 1)
	call := pub.calls[0]
	require.Equal(t, "esp-test-1", call.DeviceID)
	require.Equal(t, 0, call.Port)
	require.Equal(t, "order-1", call.OrderID)
	require.Equal(t, tok, call.Token)
	require.Equal(t, 1000, call.DurationMs)

	rec, found, err := st.Get(context.Background(), tok)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "order-1", rec.OrderID)
	require.Equal(t, 1, rec.Door)
	require.Equal(t, "buyer@example.com", rec.Email)
	require.False(t, rec.Consumed)

	claims, err := mgr.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "order-1", claims.OrderID)
	require.Equal(t, 1, claims.Door)
}

func TestUnlockUnknownDoor(t *testing.T) {
	t.Parallel()

	st := &recordingStore{Store: memory.New()}
	pub := &fakePublisher{}
	svc := NewUnlockService(testDirectory(), token.NewManager("secret", 30*time.Second), st, pub, 1000, zap.NewNop())

	_, err := svc.Unlock(context.Background(), "order-2", 99, "")
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "UNKNOWN_DOOR", domainErr.Code)

	require.Zero(t, st.puts)
	require.Zero(t, pub.callCount())
}

func TestUnlockValidation(t *testing.T) {
	t.Parallel()

	svc := NewUnlockService(testDirectory(), token.NewManager("secret", 30*time.Second), memory.New(), &fakePublisher{}, 1000, zap.NewNop())

	for _, tc := range []struct {
		name    string
		orderID string
		door    int
	}{
		{"missing order", "", 1},
		{"missing door", "order-1", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Unlock(context.Background(), tc.orderID, tc.door, "")
			var domainErr *apperrors.DomainError
			require.ErrorAs(t, err, &domainErr)
			require.Equal(t, "VALIDATION_FAILED", domainErr.Code)
		})
	}
}

func TestUnlockPublishFailureKeepsCredential(t *testing.T) {
	t.Parallel()

	st := &recordingStore{Store: memory.New()}
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	svc := NewUnlockService(testDirectory(), token.NewManager("secret", 30*time.Second), st, pub, 1000, zap.NewNop())

	_, err := svc.Unlock(context.Background(), "order-1", 1, "")
	require.Error(t, err)

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	require.Equal(t, "PUBLISH_FAILED", domainErr.Code)

	// The credential was persisted before the publish attempt; a retried
	// unlock mints a fresh one, no compensation needed.
	require.Equal(t, 1, st.puts)
}
