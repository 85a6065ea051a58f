package models

import (
	"time"

	"github.com/lendlib/membership/pkg/types"
)

// User is the member's identity plus a denormalized snapshot of the currently
// active membership. The snapshot fields (state, payment mode, membership
// window) are cache only; the Membership referenced by ActiveMembershipID is
// the source of truth and StampFromMembership keeps them aligned.
type User struct {
	ID         string           `gorm:"column:user_id;primary_key;type:varchar(64)" json:"user_id"`
	State      types.UserState  `gorm:"column:state;type:varchar(32);not null;index" json:"state"`
	Role       types.UserRole   `gorm:"column:role;type:varchar(32);not null" json:"role"`
	Firstname  string           `gorm:"column:firstname;type:varchar(128)" json:"firstname"`
	Lastname   string           `gorm:"column:lastname;type:varchar(128)" json:"lastname"`
	Email      string           `gorm:"column:email;type:varchar(255)" json:"email"`
	EmailState types.EmailState `gorm:"column:email_state;type:varchar(32)" json:"email_state"`

	Address            string     `gorm:"column:address;type:varchar(255)" json:"address"`
	PostalCode         string     `gorm:"column:postal_code;type:varchar(16)" json:"postal_code"`
	City               string     `gorm:"column:city;type:varchar(128)" json:"city"`
	Phone              string     `gorm:"column:phone;type:varchar(32)" json:"phone"`
	Mobile             string     `gorm:"column:mobile;type:varchar(32)" json:"mobile"`
	RegistrationNumber string     `gorm:"column:registration_number;type:varchar(64)" json:"registration_number"`
	Company            string     `gorm:"column:company;type:varchar(128)" json:"company"`
	Comment            string     `gorm:"column:comment;type:text" json:"comment"`
	BirthDate          *time.Time `gorm:"column:birth_date;default:null" json:"birth_date"`

	PaymentMode         types.PaymentMode `gorm:"column:payment_mode;type:varchar(32)" json:"payment_mode"`
	MembershipStartDate *time.Time        `gorm:"column:membership_start_date;default:null" json:"membership_start_date"`
	MembershipEndDate   *time.Time        `gorm:"column:membership_end_date;default:null" json:"membership_end_date"`
	AcceptTermsDate     *time.Time        `gorm:"column:accept_terms_date;default:null" json:"accept_terms_date"`
	LastSyncDate        *time.Time        `gorm:"column:last_sync_date;default:null" json:"last_sync_date"`
	// ActiveMembershipID is a weak reference: lookup only, lifetime owned by
	// the membership ledger.
	ActiveMembershipID *string `gorm:"column:active_membership;type:uuid;default:null" json:"active_membership"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// SetEmail updates the address and flags it for re-confirmation when it
// actually changes.
func (u *User) SetEmail(value string) {
	if value != "" && u.Email != value {
		u.EmailState = types.EmailStateConfirmEmail
	}
	u.Email = value
}

// MissingProfileField returns the name of the first required enrolment field
// that is empty, or "" when the profile is complete.
func (u *User) MissingProfileField() string {
	checks := []struct {
		name  string
		value string
	}{
		{"firstname", u.Firstname},
		{"lastname", u.Lastname},
		{"role", string(u.Role)},
		{"email", u.Email},
		{"address", u.Address},
		{"postal_code", u.PostalCode},
		{"city", u.City},
		{"registration_number", u.RegistrationNumber},
	}
	for _, c := range checks {
		if c.value == "" {
			return c.name
		}
	}
	return ""
}

// StampFromMembership refreshes the denormalized snapshot from the given
// membership and repoints the active-membership reference.
func (u *User) StampFromMembership(m *Membership) {
	if m == nil {
		return
	}
	start := m.StartAt
	end := m.ExpiresAt
	u.MembershipStartDate = &start
	u.MembershipEndDate = &end
	u.PaymentMode = m.LastPaymentMode
	id := m.ID
	u.ActiveMembershipID = &id
}

func (u *User) IsAdmin() bool { return u.Role == types.UserRoleAdmin }
