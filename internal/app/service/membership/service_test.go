package membership

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
	"github.com/lendlib/membership/pkg/tool"
	"github.com/lendlib/membership/pkg/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Per-test in-memory database to avoid cross-test interference.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Membership{}, &models.Payment{}))
	return db
}

func TestActivate_SwapsCurrentForPending(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, zap.NewNop().Sugar())
	ctx := context.Background()

	user := &models.User{ID: "u1", State: types.UserStateActive, Role: types.UserRoleMember}
	require.NoError(t, db.Create(user).Error)

	current := &models.Membership{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: "regular",
		ContactID:      &user.ID,
		StartAt:        time.Now().AddDate(-1, 0, 0),
		ExpiresAt:      time.Now().AddDate(0, 0, 7),
		Status:         types.MembershipStatusActive,
	}
	require.NoError(t, db.Create(current).Error)
	user.ActiveMembershipID = &current.ID
	require.NoError(t, db.Save(user).Error)

	pending := &models.Membership{
		ID:              tool.GenerateUUIDV7(),
		SubscriptionID:  "regular",
		ContactID:       &user.ID,
		StartAt:         current.ExpiresAt,
		ExpiresAt:       current.ExpiresAt.AddDate(1, 0, 0),
		Status:          types.MembershipStatusPending,
		LastPaymentMode: types.PaymentModeTransfer,
	}
	require.NoError(t, db.Create(pending).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Activate(ctx, tx, user, pending)
	}))
	require.NoError(t, db.Save(user).Error)

	var reloadedCurrent, reloadedPending models.Membership
	require.NoError(t, db.First(&reloadedCurrent, "membership_id = ?", current.ID).Error)
	require.NoError(t, db.First(&reloadedPending, "membership_id = ?", pending.ID).Error)
	require.Equal(t, types.MembershipStatusExpired, reloadedCurrent.Status)
	require.Equal(t, types.MembershipStatusActive, reloadedPending.Status)

	require.Equal(t, types.UserStateActive, user.State)
	require.NotNil(t, user.ActiveMembershipID)
	require.Equal(t, pending.ID, *user.ActiveMembershipID)
	require.Equal(t, types.PaymentModeTransfer, user.PaymentMode)
	require.NotNil(t, user.MembershipEndDate)
	require.WithinDuration(t, pending.ExpiresAt, *user.MembershipEndDate, time.Second)
}

func TestActivate_FirstMembershipHasNothingToExpire(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, zap.NewNop().Sugar())
	ctx := context.Background()

	user := &models.User{ID: "u1", State: types.UserStateCheckPayment, Role: types.UserRoleMember}
	require.NoError(t, db.Create(user).Error)

	pending := &models.Membership{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: "regular",
		ContactID:      &user.ID,
		StartAt:        time.Now(),
		ExpiresAt:      time.Now().AddDate(1, 0, 0),
		Status:         types.MembershipStatusPending,
	}
	require.NoError(t, db.Create(pending).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Activate(ctx, tx, user, pending)
	}))

	require.Equal(t, types.MembershipStatusActive, pending.Status)
	require.Equal(t, types.UserStateActive, user.State)
}

func TestCreateRenewal_StartsWhereCurrentEnds(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, zap.NewNop().Sugar())
	ctx := context.Background()

	user := &models.User{ID: "u1", State: types.UserStateActive, Role: types.UserRoleMember}
	require.NoError(t, db.Create(user).Error)

	plan := &types.MembershipType{ID: "regular", Name: types.MembershipTypeRegular, Duration: types.DurationYearly}
	current := &models.Membership{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: "regular",
		ContactID:      &user.ID,
		StartAt:        time.Now().AddDate(-1, 0, 30),
		ExpiresAt:      time.Now().AddDate(0, 0, 30),
		Status:         types.MembershipStatusActive,
	}
	require.NoError(t, db.Create(current).Error)

	renewal, err := svc.CreateRenewal(ctx, db, user, current, plan, types.PaymentModeTransfer)
	require.NoError(t, err)
	require.Equal(t, types.MembershipStatusPending, renewal.Status)
	require.WithinDuration(t, current.ExpiresAt, renewal.StartAt, time.Second)

	// A lapsed current period starts the renewal today instead.
	current.ExpiresAt = time.Now().AddDate(0, 0, -10)
	renewal2, err := svc.CreateRenewal(ctx, db, user, current, plan, types.PaymentModeTransfer)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), renewal2.StartAt, 2*time.Second)
}
