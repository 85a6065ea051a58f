package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lendlib/membership/pkg/types"
)

func TestSetEmail(t *testing.T) {
	u := &User{Email: "old@example.org", EmailState: types.EmailStateConfirmed}

	u.SetEmail("old@example.org")
	require.Equal(t, types.EmailStateConfirmed, u.EmailState)

	u.SetEmail("new@example.org")
	require.Equal(t, "new@example.org", u.Email)
	require.Equal(t, types.EmailStateConfirmEmail, u.EmailState)
}

func TestMissingProfileField(t *testing.T) {
	u := &User{
		Firstname: "An", Lastname: "Peeters", Role: types.UserRoleMember,
		Email: "an@example.org", Address: "Hoofdstraat 1", PostalCode: "3000",
		City: "Leuven", RegistrationNumber: "85.01.01-123.45",
	}
	require.Empty(t, u.MissingProfileField())

	u.PostalCode = ""
	require.Equal(t, "postal_code", u.MissingProfileField())
}

func TestStampFromMembership(t *testing.T) {
	m := &Membership{
		ID:              "00000000-0000-0000-0000-000000000001",
		StartAt:         time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		LastPaymentMode: types.PaymentModeMollie,
	}
	u := &User{}
	u.StampFromMembership(m)

	require.Equal(t, m.StartAt, *u.MembershipStartDate)
	require.Equal(t, m.ExpiresAt, *u.MembershipEndDate)
	require.Equal(t, types.PaymentModeMollie, u.PaymentMode)
	require.Equal(t, m.ID, *u.ActiveMembershipID)

	// A nil membership leaves the snapshot untouched.
	u.StampFromMembership(nil)
	require.Equal(t, m.ID, *u.ActiveMembershipID)
}
