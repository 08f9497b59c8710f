package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/vending-service/internal/messaging"
	"github.com/spec-kit/vending-service/internal/observability"
	"github.com/spec-kit/vending-service/internal/store"
	"github.com/spec-kit/vending-service/internal/token"
)

// Confirmation outcomes recorded as metric labels. Rejections are
// logged and the event dropped; there is no caller to answer.
const (
	outcomeAccepted        = "accepted"
	outcomeMissingToken    = "missing_token"
	outcomeUnverifiedToken = "unverified_token"
	outcomeClaimMismatch   = "claim_mismatch"
	outcomeUnknownToken    = "unknown_token"
	outcomeAlreadyConsumed = "already_consumed"
	outcomeStoreError      = "store_error"
)

// ConfirmationService validates door_open events against issued
// credentials and enforces single-use semantics. Per credential the only
// transitions are issued to consumed (terminal) and issued to expired
// (terminal, via sweep or signature expiry).
type ConfirmationService struct {
	tokens   *token.Manager
	store    store.Store
	notifier Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewConfirmationService creates the service.
func NewConfirmationService(tokens *token.Manager, st store.Store, notifier Notifier, logger *zap.Logger, metrics *observability.Metrics) *ConfirmationService {
	return &ConfirmationService{
		tokens:   tokens,
		store:    st,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// HandleDoorOpen runs the confirmation pipeline for one event.
func (s *ConfirmationService) HandleDoorOpen(ctx context.Context, deviceID string, evt messaging.DoorOpenEvent) {
	if evt.Token == "" {
		s.reject(outcomeMissingToken, deviceID, evt, "door_open event missing token")
		return
	}

	claims, err := s.tokens.Verify(evt.Token)
	if err != nil {
		// Covers tampered signatures and tokens past their embedded
		// expiry alike.
		s.logger.Warn("invalid or expired token in door_open",
			zap.String("device_id", deviceID),
			zap.Error(err))
		s.metrics.RecordConfirmation(outcomeUnverifiedToken)
		return
	}

	if claims.OrderID != evt.OrderID || claims.Door != evt.Door {
		// A validly signed token replayed against another door or order.
		s.logger.Warn("token claims do not match door_open event",
			zap.String("device_id", deviceID),
			zap.String("claim_order_id", claims.OrderID),
			zap.String("event_order_id", evt.OrderID),
			zap.Int("claim_door", claims.Door),
			zap.Int("event_door", evt.Door))
		s.metrics.RecordConfirmation(outcomeClaimMismatch)
		return
	}

	rec, found, err := s.store.Get(ctx, evt.Token)
	if err != nil {
		s.logger.Error("token lookup failed", zap.Error(err))
		s.metrics.RecordConfirmation(outcomeStoreError)
		return
	}
	if !found {
		s.reject(outcomeUnknownToken, deviceID, evt,
			"token not found, expired or not issued by us")
		return
	}
	if rec.Consumed {
		s.reject(outcomeAlreadyConsumed, deviceID, evt, "token already used")
		return
	}

	if err := s.store.MarkConsumed(ctx, evt.Token); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyConsumed):
			// Lost the race against a concurrent confirmation for the
			// same token.
			s.reject(outcomeAlreadyConsumed, deviceID, evt, "token already used")
		case errors.Is(err, store.ErrNotFound):
			s.reject(outcomeUnknownToken, deviceID, evt, "token swept before consumption")
		default:
			s.logger.Error("failed to mark token consumed", zap.Error(err))
			s.metrics.RecordConfirmation(outcomeStoreError)
		}
		return
	}

	s.metrics.RecordConfirmation(outcomeAccepted)
	s.logger.Info("door opened",
		zap.Int("door", evt.Door),
		zap.String("order_id", evt.OrderID),
		zap.String("device_id", deviceID),
		zap.String("timestamp", evt.Timestamp))

	if rec.Email == "" {
		s.logger.Debug("no email on record", zap.String("order_id", evt.OrderID))
		return
	}
	// A notification failure never reverses consumption: the door
	// already opened, so the token must stay spent.
	if err := s.notifier.SendReceipt(ctx, rec.Email, evt.OrderID, evt.Door); err != nil {
		s.logger.Error("failed to send receipt email",
			zap.String("order_id", evt.OrderID),
			zap.Error(err))
		s.metrics.RecordConfirmation("notification_failed")
		return
	}
	s.logger.Info("receipt email sent",
		zap.String("to", rec.Email),
		zap.String("order_id", evt.OrderID))
}

func (s *ConfirmationService) reject(outcome, deviceID string, evt messaging.DoorOpenEvent, msg string) {
	s.logger.Warn(msg,
		zap.String("device_id", deviceID),
		zap.String("order_id", evt.OrderID),
		zap.Int("door", evt.Door))
	s.metrics.RecordConfirmation(outcome)
}
