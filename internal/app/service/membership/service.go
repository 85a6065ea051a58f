// Package membership is the ledger of coverage periods. It owns the
// membership state machine and the date-extension algorithm; Activate is the
// only place in the repository that flips a membership to ACTIVE.
package membership

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
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

// FindActive returns the user's currently active membership, or nil.
func (s *Service) FindActive(ctx context.Context, tx *gorm.DB, user *models.User) (*models.Membership, error) {
	if user.ActiveMembershipID == nil {
		return nil, nil
	}
	var m models.Membership
	err := tx.WithContext(ctx).Where("membership_id = ?", *user.ActiveMembershipID).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active membership of user %s: %w", user.ID, err)
	}
	return &m, nil
}

func (s *Service) Find(ctx context.Context, tx *gorm.DB, id string) (*models.Membership, error) {
	var m models.Membership
	if err := tx.WithContext(ctx).Where("membership_id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateEnrolment opens the first coverage period for a user. The membership
// starts PENDING while the first payment is outstanding; confirmation runs
// Activate.
func (s *Service) CreateEnrolment(ctx context.Context, tx *gorm.DB, user *models.User, plan *types.MembershipType, mode types.PaymentMode, start time.Time) (*models.Membership, error) {
	m := &models.Membership{
		ID:              tool.GenerateUUIDV7(),
		SubscriptionID:  plan.ID,
		ContactID:       &user.ID,
		StartAt:         start,
		ExpiresAt:       ComputeMembershipEndDate(start, plan),
		Status:          types.MembershipStatusPending,
		LastPaymentMode: mode,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to create enrolment membership: %w", err)
	}
	return m, nil
}

// CreateRenewal opens the successor coverage period in PENDING. It starts
// where the current period ends, or today when the current period has
// already lapsed.
func (s *Service) CreateRenewal(ctx context.Context, tx *gorm.DB, user *models.User, current *models.Membership, plan *types.MembershipType, mode types.PaymentMode) (*models.Membership, error) {
	start := time.Now()
	if current != nil && current.ExpiresAt.After(start) {
		start = current.ExpiresAt
	}
	m := &models.Membership{
		ID:              tool.GenerateUUIDV7(),
		SubscriptionID:  plan.ID,
		ContactID:       &user.ID,
		StartAt:         start,
		ExpiresAt:       ComputeMembershipEndDate(start, plan),
		Status:          types.MembershipStatusPending,
		LastPaymentMode: mode,
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("failed to create renewal membership: %w", err)
	}
	return m, nil
}

// Activate confirms a pending membership: the superseded period (if any)
// moves to EXPIRED, the pending one to ACTIVE, and the user snapshot is
// repointed. Must run inside the same transaction as the payment state write
// that triggered it.
func (s *Service) Activate(ctx context.Context, tx *gorm.DB, user *models.User, pending *models.Membership) error {
	current, err := s.FindActive(ctx, tx, user)
	if err != nil {
		return err
	}
	if current != nil && current.ID != pending.ID {
		current.Status = types.MembershipStatusExpired
		if err := tx.WithContext(ctx).Save(current).Error; err != nil {
			return fmt.Errorf("failed to expire membership %s: %w", current.ID, err)
		}
	}

	pending.Status = types.MembershipStatusActive
	if err := tx.WithContext(ctx).Save(pending).Error; err != nil {
		return fmt.Errorf("failed to activate membership %s: %w", pending.ID, err)
	}

	user.State = types.UserStateActive
	user.StampFromMembership(pending)

	logctx.FromCtx(ctx, s.log).Infow("membership activated",
		"membership_id", pending.ID, "user_id", user.ID, "expires_at", pending.ExpiresAt)
	return nil
}

// Cancel marks a membership CANCELLED after its payment was declined.
func (s *Service) Cancel(ctx context.Context, tx *gorm.DB, m *models.Membership) error {
	m.Status = types.MembershipStatusCancelled
	if err := tx.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("failed to cancel membership %s: %w", m.ID, err)
	}
	return nil
}
