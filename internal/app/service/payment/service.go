// Package payment is the ledger of payment attempts. It owns the payment
// state machine: gateway-confirmed transitions go through MapGatewayStatus +
// ApplyGatewayState (idempotent on redelivery), manual modes through
// ConfirmManual / Decline.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/pkg/apperr"
	"github.com/lendlib/membership/pkg/logctx"
	"github.com/lendlib/membership/pkg/tool"
	"github.com/lendlib/membership/pkg/types"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, log *zap.SugaredLogger) *Service {
	return &Service{db: db, log: log}
}

// Lookup finds the payment for the natural key (order, user, mode). Returns
// nil when absent.
func (s *Service) Lookup(ctx context.Context, tx *gorm.DB, orderID, userID string, mode types.PaymentMode) (*models.Payment, error) {
	var p models.Payment
	err := tx.WithContext(ctx).
		Where("order_id = ? AND user_id = ? AND mode = ?", orderID, userID, mode).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lookup payment %s/%s/%s: %w", orderID, userID, mode, err)
	}
	return &p, nil
}

// Create inserts a payment row. The composite unique index on
// (order_id, user_id, mode) serializes concurrent creation attempts; the
// loser of the race observes the winner's row instead of creating a
// duplicate.
func (s *Service) Create(ctx context.Context, tx *gorm.DB, p *models.Payment) (*models.Payment, error) {
	if p.ID == "" {
		p.ID = tool.GenerateUUIDV7()
	}
	if p.State == "" {
		p.State = types.PaymentStateOpen
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Now()
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		existing, lookupErr := s.Lookup(ctx, tx, p.OrderID, p.UserID, p.Mode)
		if lookupErr == nil && existing != nil {
			logctx.FromCtx(ctx, s.log).Infow("payment already exists, reusing",
				"order_id", p.OrderID, "user_id", p.UserID, "mode", p.Mode)
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create payment %s/%s/%s: %w", p.OrderID, p.UserID, p.Mode, err)
	}
	return p, nil
}

// MapGatewayStatus maps the gateway's reported flags to exactly one local
// payment state. A paid payment with refunds or chargebacks reports those,
// not SUCCESS.
func MapGatewayStatus(st *gateway.RemoteStatus) types.PaymentState {
	switch {
	case st.IsPaid && !st.HasRefunds && !st.HasChargebacks:
		return types.PaymentStateSuccess
	case st.IsOpen:
		return types.PaymentStateOpen
	case st.IsPending:
		return types.PaymentStatePending
	case st.IsFailed:
		return types.PaymentStateFailed
	case st.IsExpired:
		return types.PaymentStateExpired
	case st.IsCanceled:
		return types.PaymentStateCanceled
	case st.HasRefunds:
		return types.PaymentStateRefund
	case st.HasChargebacks:
		return types.PaymentStateChargeback
	}
	return types.PaymentStateOpen
}

// ApplyGatewayState persists a gateway-reported state. Redelivery of an
// unchanged status is a no-op: no save, no side effects. The returned bool
// is the sole idempotency guard for everything downstream.
func (s *Service) ApplyGatewayState(ctx context.Context, tx *gorm.DB, p *models.Payment, newState types.PaymentState) (bool, error) {
	if p.State == newState {
		return false, nil
	}
	p.State = newState
	if err := tx.WithContext(ctx).Save(p).Error; err != nil {
		return false, fmt.Errorf("failed to save payment %s state %s: %w", p.ID, newState, err)
	}
	logctx.FromCtx(ctx, s.log).Infow("payment state updated",
		"payment_id", p.ID, "order_id", p.OrderID, "state", newState)
	return true, nil
}

// ConfirmManual moves an OPEN payment to SUCCESS. Payments already settled
// or declined are rejected with a coded error so a retry sees the same
// terminal answer instead of a partial state.
func (s *Service) ConfirmManual(ctx context.Context, tx *gorm.DB, p *models.Payment) error {
	switch p.State {
	case types.PaymentStateOpen:
	case types.PaymentStateSuccess:
		return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment %s already confirmed", p.ID)
	case types.PaymentStateFailed:
		return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment %s already declined", p.ID)
	default:
		return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment %s in state %s cannot be confirmed", p.ID, p.State)
	}
	p.State = types.PaymentStateSuccess
	p.PaymentDate = time.Now()
	if err := tx.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to confirm payment %s: %w", p.ID, err)
	}
	return nil
}

// Decline moves an OPEN payment to FAILED.
func (s *Service) Decline(ctx context.Context, tx *gorm.DB, p *models.Payment) error {
	if p.State != types.PaymentStateOpen {
		return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment %s in state %s cannot be declined", p.ID, p.State)
	}
	p.State = types.PaymentStateFailed
	if err := tx.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to decline payment %s: %w", p.ID, err)
	}
	return nil
}

// FindForManualAction resolves the payment a staff confirmation or decline
// targets. Exactly one OPEN payment for (user, mode) wins; more than one is
// a data-integrity problem upstream and there is no tie-break. With no OPEN
// payment the most recent one is returned so the state machine can answer
// with the same terminal error on retries.
func (s *Service) FindForManualAction(ctx context.Context, tx *gorm.DB, userID string, mode types.PaymentMode) (*models.Payment, error) {
	var rows []*models.Payment
	err := tx.WithContext(ctx).
		Where("user_id = ? AND mode = ?", userID, mode).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find payments for %s/%s: %w", userID, mode, err)
	}
	if len(rows) == 0 {
		return nil, apperr.Newf(apperr.CodeUnknownPayment, "no %s payment for user %s", mode, userID)
	}
	open := lo.Filter(rows, func(p *models.Payment, _ int) bool {
		return p.State == types.PaymentStateOpen
	})
	switch len(open) {
	case 0:
		return rows[0], nil
	case 1:
		return open[0], nil
	default:
		return nil, apperr.Newf(apperr.CodeUnexpectedPaymentState, "%d open %s payments for user %s", len(open), mode, userID)
	}
}
