package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lendlib/membership/pkg/apperr"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/types"
)

func testConfig() *cfgpkg.Config {
	return &cfgpkg.Config{
		MembershipTypes: []*types.MembershipType{
			{ID: "regular", Name: types.MembershipTypeRegular, Price: 50, Currency: "EUR", Duration: types.DurationYearly},
			{ID: "temporary", Name: types.MembershipTypeTemporary, Price: 10, Currency: "EUR", Duration: types.DurationFixedDays, DurationDays: 60, NextID: "regular"},
			{ID: "stroom", Name: types.MembershipTypeStroom, Price: 0, Currency: "EUR", Duration: types.DurationYearly},
		},
	}
}

func TestNew_ValidatesSuccessorReferences(t *testing.T) {
	cfg := testConfig()
	cfg.MembershipTypes[0].NextID = "does-not-exist"
	_, err := New(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown successor")
}

func TestNew_RejectsFixedPlanWithoutDays(t *testing.T) {
	cfg := testConfig()
	cfg.MembershipTypes[1].DurationDays = 0
	_, err := New(cfg)
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	got, err := c.Find("regular")
	require.NoError(t, err)
	require.Equal(t, types.MembershipTypeRegular, got.Name)

	_, err = c.Find("nope")
	require.True(t, apperr.HasCode(err, apperr.CodeUnexpectedMembershipType))
}

func TestNextForRenewal(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	// Successor configured: temporary upgrades to regular.
	next, err := c.NextForRenewal(c.Temporary())
	require.NoError(t, err)
	require.Equal(t, "regular", next.ID)

	// No successor: plan renews unchanged.
	next, err = c.NextForRenewal(c.Regular())
	require.NoError(t, err)
	require.Equal(t, "regular", next.ID)

	// Stroom renews verbatim even if a successor were set.
	stroom := c.Stroom()
	next, err = c.NextForRenewal(stroom)
	require.NoError(t, err)
	require.Equal(t, stroom.ID, next.ID)
}
