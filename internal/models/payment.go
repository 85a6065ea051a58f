package models

import (
	"time"

	"github.com/lendlib/membership/pkg/types"
)

// Payment is one payment attempt. The natural key (order_id, user_id, mode)
// is enforced by a composite unique index so concurrent creation attempts for
// the same key serialize into exactly one row; other systems rely on this key
// for reconciliation.
type Payment struct {
	ID      string            `gorm:"column:payment_id;primary_key;type:uuid" json:"payment_id"`
	OrderID string            `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:unique_order_user_mode,priority:1" json:"order_id"`
	UserID  string            `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:unique_order_user_mode,priority:2;index" json:"user_id"`
	Mode    types.PaymentMode `gorm:"column:mode;type:varchar(32);not null;uniqueIndex:unique_order_user_mode,priority:3" json:"mode"`

	Amount      float64            `gorm:"column:amount;type:numeric(10,2);not null" json:"amount"`
	Currency    string             `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	PaymentDate time.Time          `gorm:"column:payment_date;not null" json:"payment_date"`
	State       types.PaymentState `gorm:"column:state;type:varchar(32);not null;index" json:"state"`

	// MembershipID links the membership period this payment settles.
	MembershipID *string `gorm:"column:membership_id;type:uuid;default:null" json:"membership_id"`
	// ExternalID is the gateway's payment id for MOLLIE-mode payments.
	ExternalID string `gorm:"column:external_id;type:varchar(128);index" json:"external_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string { return "payment" }
