package types

// PaymentMode is how a member settles an enrolment or renewal payment.
// MOLLIE is the only asynchronous, gateway-backed mode; all other modes are
// confirmed manually by staff ("transfer-like").
type PaymentMode string

const (
	PaymentModeCash       PaymentMode = "CASH"
	PaymentModeTransfer   PaymentMode = "TRANSFER"
	PaymentModeMollie     PaymentMode = "MOLLIE"
	PaymentModeMbon       PaymentMode = "MBON"
	PaymentModeSponsoring PaymentMode = "SPONSORING"
	PaymentModeLets       PaymentMode = "LETS"
	PaymentModePayconiq   PaymentMode = "PAYCONIQ"
	PaymentModeOther      PaymentMode = "OTHER"
	PaymentModeStroom     PaymentMode = "STROOM"
	PaymentModeOvam       PaymentMode = "OVAM"
)

// TransferLike reports whether the mode is settled outside the payment
// gateway and therefore confirmed manually.
func (m PaymentMode) TransferLike() bool {
	return m != PaymentModeMollie && m != ""
}

var paymentModes = map[PaymentMode]struct{}{
	PaymentModeCash: {}, PaymentModeTransfer: {}, PaymentModeMollie: {},
	PaymentModeMbon: {}, PaymentModeSponsoring: {}, PaymentModeLets: {},
	PaymentModePayconiq: {}, PaymentModeOther: {}, PaymentModeStroom: {},
	PaymentModeOvam: {},
}

// ParsePaymentMode validates a wire value against the known mode set.
func ParsePaymentMode(s string) (PaymentMode, bool) {
	m := PaymentMode(s)
	_, ok := paymentModes[m]
	return m, ok
}

type PaymentState string

const (
	PaymentStateOpen       PaymentState = "OPEN"
	PaymentStateSuccess    PaymentState = "SUCCESS"
	PaymentStatePending    PaymentState = "PENDING"
	PaymentStateFailed     PaymentState = "FAILED"
	PaymentStateExpired    PaymentState = "EXPIRED"
	PaymentStateCanceled   PaymentState = "CANCELED"
	PaymentStateRefund     PaymentState = "REFUND"
	PaymentStateChargeback PaymentState = "CHARGEBACK"
)

// Terminal reports whether the state can still change on a later gateway
// poll. OPEN and PENDING may still move; everything else is final.
func (s PaymentState) Terminal() bool {
	return s != PaymentStateOpen && s != PaymentStatePending
}

// Failure groups the states that warrant a failure notification for
// manual follow up.
func (s PaymentState) Failure() bool {
	switch s {
	case PaymentStateFailed, PaymentStateExpired, PaymentStateCanceled,
		PaymentStateRefund, PaymentStateChargeback:
		return true
	}
	return false
}

type MembershipStatus string

const (
	MembershipStatusPending   MembershipStatus = "PENDING"
	MembershipStatusActive    MembershipStatus = "ACTIVE"
	MembershipStatusExpired   MembershipStatus = "EXPIRED"
	MembershipStatusCancelled MembershipStatus = "CANCELLED"
)

type UserState string

const (
	UserStateCheckPayment UserState = "CHECK_PAYMENT"
	UserStateActive       UserState = "ACTIVE"
	UserStateExpired      UserState = "EXPIRED"
	UserStateDisabled     UserState = "DISABLED"
	UserStateDeleted      UserState = "DELETED"
)

type UserRole string

const (
	UserRoleAdmin     UserRole = "admin"
	UserRoleMember    UserRole = "member"
	UserRoleVolunteer UserRole = "volunteer"
	UserRoleSupporter UserRole = "supporter"
)

type EmailState string

const (
	EmailStateConfirmed    EmailState = "CONFIRMED"
	EmailStateConfirmEmail EmailState = "CONFIRM_EMAIL"
)

// ProductKind distinguishes the two products a gateway payment can carry.
type ProductKind string

const (
	ProductEnrolment ProductKind = "ENROLMENT"
	ProductRenewal   ProductKind = "RENEWAL"
)
