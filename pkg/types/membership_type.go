package types

type MembershipTypeName string

const (
	MembershipTypeRegular   MembershipTypeName = "regular"
	MembershipTypeTemporary MembershipTypeName = "temporary"
	MembershipTypeStroom    MembershipTypeName = "stroom"
)

// DurationPolicy selects how a membership end date is derived from its start.
type DurationPolicy string

const (
	// DurationYearly adds one year, extended to the last day of December of
	// the following year when the naive end date falls past the December
	// pivot.
	DurationYearly DurationPolicy = "yearly"
	// DurationFixedDays adds MembershipType.DurationDays days, no extension.
	DurationFixedDays DurationPolicy = "fixed_days"
)

// MembershipType is a plan definition. Plans are read-mostly reference data
// declared in configuration; once a Membership references a plan id the plan
// must not be mutated in place (changes get a new id).
type MembershipType struct {
	ID       string             `json:"id" mapstructure:"id"`
	Name     MembershipTypeName `json:"name" mapstructure:"name"`
	Price    float64            `json:"price" mapstructure:"price"`
	Currency string             `json:"currency" mapstructure:"currency"`
	Duration DurationPolicy     `json:"duration" mapstructure:"duration"`
	// DurationDays is only meaningful for fixed_days plans.
	DurationDays int `json:"duration_days" mapstructure:"duration_days"`
	// NextID is the successor plan applied on renewal; empty keeps the
	// current plan.
	NextID string `json:"next_id" mapstructure:"next_id"`
}

func (t *MembershipType) Yearly() bool {
	return t != nil && t.Duration == DurationYearly
}
