package membership

import (
	"time"

	"github.com/lendlib/membership/pkg/types"
)

// ComputeMembershipEndDate derives a membership expiry from its start date
// and the plan's duration policy. Pure; no clock access.
//
// Yearly plans run one year. When the naive end date lands after the first of
// December of the year following the start, the membership is extended to the
// last day of that December, so late-year renewals get a full extra runway
// instead of a mid-month expiry. Fixed-duration plans add their day count
// with no extension.
func ComputeMembershipEndDate(start time.Time, plan *types.MembershipType) time.Time {
	if plan != nil && plan.Duration == types.DurationFixedDays {
		return start.AddDate(0, 0, plan.DurationDays)
	}
	end := start.AddDate(1, 0, 0)
	pivot := time.Date(start.Year()+1, time.December, 1, 0, 0, 0, 0, start.Location())
	if end.After(pivot) {
		return time.Date(start.Year()+1, time.December, 31, 0, 0, 0, 0, start.Location())
	}
	return end
}
