package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/directory"
	"github.com/spec-kit/vending-service/internal/messaging"
	"github.com/spec-kit/vending-service/internal/store"
	"github.com/spec-kit/vending-service/internal/token"
	apperrors "github.com/spec-kit/vending-service/pkg/util"
)

// UnlockService mints single-use credentials and dispatches unlock
// commands. Ownership of the credential state moves to the store the
// moment the record is persisted; confirmation arrives asynchronously
// on the event path, never here.
type UnlockService struct {
	directory  *directory.Directory
	tokens     *token.Manager
	store      store.Store
	publisher  messaging.Publisher
	durationMs int
	logger     *zap.Logger
}

// NewUnlockService creates the service.
func NewUnlockService(dir *directory.Directory, tokens *token.Manager, st store.Store, publisher messaging.Publisher, durationMs int, logger *zap.Logger) *UnlockService {
	if durationMs <= 0 {
		durationMs = 1000
	}
	return &UnlockService{
		directory:  dir,
		tokens:     tokens,
		store:      st,
		publisher:  publisher,
		durationMs: durationMs,
		logger:     logger,
	}
}

// Unlock issues a credential for the (order, door) pair, persists it and
// publishes the unlock command. The returned token is both the
// capability handed to the controller and the correlation key for the
// later confirmation event.
func (s *UnlockService) Unlock(ctx context.Context, orderID string, door int, email string) (string, error) {
	if orderID == "" || door <= 0 {
		return "", apperrors.NewValidationError("orderId and door are required", nil)
	}

	mapping, err := s.directory.Resolve(door)
	if err != nil {
		if errors.Is(err, directory.ErrUnknownDoor) {
			return "", apperrors.NewUnknownDoor(door)
		}
		return "", apperrors.NewInternalError(err)
	}

	tok, expiresAt, err := s.tokens.Issue(orderID, door)
	if err != nil {
		return "", apperrors.NewInternalError(err)
	}

	rec := store.Record{
		OrderID:   orderID,
		Door:      door,
		Email:     email,
		Consumed:  false,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}
	if err := s.store.Put(ctx, tok, rec); err != nil {
		return "", apperrors.NewInternalError(err)
	}

	if err := s.publisher.SendUnlock(mapping.DeviceID, mapping.PortIndex, orderID, tok, s.durationMs); err != nil {
		// The credential stays issued; nothing physical has happened and
		// a retried unlock mints a fresh token.
		return "", apperrors.NewPublishFailure(err)
	}

	s.logger.Info("unlock issued",
		zap.String("order_id", orderID),
		zap.Int("door", door),
		zap.String("device_id", mapping.DeviceID),
		zap.Time("expires_at", expiresAt))
	return tok, nil
}
