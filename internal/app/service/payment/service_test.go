package payment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/pkg/apperr"
	"github.com/lendlib/membership/pkg/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Payment{}))
	return db
}

func newService(t *testing.T) (*Service, *gorm.DB) {
	db := testDB(t)
	return NewService(db, zap.NewNop().Sugar()), db
}

func TestMapGatewayStatus(t *testing.T) {
	cases := []struct {
		name   string
		status gateway.RemoteStatus
		want   types.PaymentState
	}{
		{"paid", gateway.RemoteStatus{IsPaid: true}, types.PaymentStateSuccess},
		{"paid with refund", gateway.RemoteStatus{IsPaid: true, HasRefunds: true}, types.PaymentStateRefund},
		{"paid with chargeback", gateway.RemoteStatus{IsPaid: true, HasChargebacks: true}, types.PaymentStateChargeback},
		{"open", gateway.RemoteStatus{IsOpen: true}, types.PaymentStateOpen},
		{"pending", gateway.RemoteStatus{IsPending: true}, types.PaymentStatePending},
		{"failed", gateway.RemoteStatus{IsFailed: true}, types.PaymentStateFailed},
		{"expired", gateway.RemoteStatus{IsExpired: true}, types.PaymentStateExpired},
		{"canceled", gateway.RemoteStatus{IsCanceled: true}, types.PaymentStateCanceled},
		{"no flags defaults open", gateway.RemoteStatus{}, types.PaymentStateOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, MapGatewayStatus(&tc.status))
		})
	}
}

func TestCreate_DuplicateKeyReturnsExistingRow(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, db, &models.Payment{
		OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, types.PaymentStateOpen, first.State)

	second, err := svc.Create(ctx, db, &models.Payment{
		OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestApplyGatewayState_NoOpOnUnchangedState(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	pay, err := svc.Create(ctx, db, &models.Payment{
		OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeMollie, Amount: 50, Currency: "EUR",
	})
	require.NoError(t, err)

	changed, err := svc.ApplyGatewayState(ctx, db, pay, types.PaymentStateOpen)
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = svc.ApplyGatewayState(ctx, db, pay, types.PaymentStateSuccess)
	require.NoError(t, err)
	require.True(t, changed)

	var reloaded models.Payment
	require.NoError(t, db.First(&reloaded, "payment_id = ?", pay.ID).Error)
	require.Equal(t, types.PaymentStateSuccess, reloaded.State)

	// Redelivery of the same status is a no-op.
	changed, err = svc.ApplyGatewayState(ctx, db, pay, types.PaymentStateSuccess)
	require.NoError(t, err)
	require.False(t, changed)
}

func TestConfirmManual(t *testing.T) {
	cases := []struct {
		name     string
		state    types.PaymentState
		wantErr  bool
		contains string
	}{
		{"open confirms", types.PaymentStateOpen, false, ""},
		{"already confirmed", types.PaymentStateSuccess, true, "already confirmed"},
		{"already declined", types.PaymentStateFailed, true, "already declined"},
		{"pending rejected", types.PaymentStatePending, true, "cannot be confirmed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, db := newService(t)
			ctx := context.Background()

			pay, err := svc.Create(ctx, db, &models.Payment{
				OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
				State: tc.state,
			})
			require.NoError(t, err)

			err = svc.ConfirmManual(ctx, db, pay)
			if tc.wantErr {
				require.True(t, apperr.HasCode(err, apperr.CodeUnexpectedPaymentState))
				require.Contains(t, err.Error(), tc.contains)
				return
			}
			require.NoError(t, err)
			require.Equal(t, types.PaymentStateSuccess, pay.State)
		})
	}
}

func TestDecline_OnlyFromOpen(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	pay, err := svc.Create(ctx, db, &models.Payment{
		OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Decline(ctx, db, pay))
	require.Equal(t, types.PaymentStateFailed, pay.State)

	err = svc.Decline(ctx, db, pay)
	require.True(t, apperr.HasCode(err, apperr.CodeUnexpectedPaymentState))
}

func TestFindForManualAction(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()

	_, err := svc.FindForManualAction(ctx, db, "u1", types.PaymentModeTransfer)
	require.True(t, apperr.HasCode(err, apperr.CodeUnknownPayment))

	older := &models.Payment{
		OrderID: "order-1", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
		State: types.PaymentStateFailed, CreatedAt: time.Now().Add(-time.Hour),
	}
	_, err = svc.Create(ctx, db, older)
	require.NoError(t, err)

	// No OPEN payment: the most recent one answers so retries see the same
	// terminal error.
	got, err := svc.FindForManualAction(ctx, db, "u1", types.PaymentModeTransfer)
	require.NoError(t, err)
	require.Equal(t, older.ID, got.ID)

	open := &models.Payment{
		OrderID: "order-2", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
		CreatedAt: time.Now().Add(-time.Minute),
	}
	_, err = svc.Create(ctx, db, open)
	require.NoError(t, err)

	got, err = svc.FindForManualAction(ctx, db, "u1", types.PaymentModeTransfer)
	require.NoError(t, err)
	require.Equal(t, open.ID, got.ID)

	// A second OPEN payment for the same (user, mode) has no tie-break.
	_, err = svc.Create(ctx, db, &models.Payment{
		OrderID: "order-3", UserID: "u1", Mode: types.PaymentModeTransfer, Amount: 50, Currency: "EUR",
	})
	require.NoError(t, err)

	_, err = svc.FindForManualAction(ctx, db, "u1", types.PaymentModeTransfer)
	require.True(t, apperr.HasCode(err, apperr.CodeUnexpectedPaymentState))
}
