package models

import (
	"time"

	"github.com/lendlib/membership/pkg/types"
)

// Membership is one coverage period for a user. ExpiresAt is always derived
// from StartAt plus the plan's duration policy, never set ad hoc. At most one
// membership per user is ACTIVE; a PENDING renewal coexists with the current
// ACTIVE one until its payment confirms.
type Membership struct {
	ID string `gorm:"column:membership_id;primary_key;type:uuid" json:"membership_id"`
	// SubscriptionID is the plan (membership type) this period was sold as.
	SubscriptionID string `gorm:"column:subscription_id;type:varchar(64);not null" json:"subscription_id"`
	// ContactID is nullable while the membership is pending.
	ContactID *string `gorm:"column:contact_id;type:varchar(64);index" json:"contact_id"`

	StartAt   time.Time `gorm:"column:start_at;not null" json:"start_at"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null" json:"expires_at"`

	Status          types.MembershipStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	LastPaymentMode types.PaymentMode      `gorm:"column:last_payment_mode;type:varchar(32)" json:"last_payment_mode"`
	// PaymentID links the payment that settles this period (0..1).
	PaymentID *string `gorm:"column:payment_id;type:uuid;default:null" json:"payment_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Membership) TableName() string { return "membership" }

func (m *Membership) Active() bool {
	return m != nil && m.Status == types.MembershipStatusActive
}
