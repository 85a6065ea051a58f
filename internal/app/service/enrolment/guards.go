package enrolment

import (
	"time"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/pkg/apperr"
	"github.com/lendlib/membership/pkg/types"
)

// checkUserStateEnrolment permits enrolment only from CHECK_PAYMENT. A
// DISABLED user is auto-transitioned to CHECK_PAYMENT by the caller before
// this guard runs.
func checkUserStateEnrolment(u *models.User) error {
	if u.State == types.UserStateActive || u.State == types.UserStateExpired {
		return apperr.New(apperr.CodeAlreadyEnrolled, "user already enrolled, consider a renewal")
	}
	if u.State != types.UserStateCheckPayment {
		return apperr.Newf(apperr.CodeUnsupportedState, "user state %s unsupported for enrolment", u.State)
	}
	return nil
}

// checkUserStateRenewal permits renewal only from ACTIVE or EXPIRED.
func checkUserStateRenewal(u *models.User) error {
	if u.State == types.UserStateCheckPayment {
		return apperr.New(apperr.CodeNotEnrolled, "enrolment not yet complete, consider an enrolment")
	}
	if u.State != types.UserStateActive && u.State != types.UserStateExpired {
		return apperr.Newf(apperr.CodeUnsupportedState, "user state %s unsupported for renewal", u.State)
	}
	return nil
}

// checkUserInfo requires the profile fields enrolment needs; the first
// missing field short-circuits.
func checkUserInfo(u *models.User) error {
	if f := u.MissingProfileField(); f != "" {
		return apperr.Newf(apperr.CodeIncompleteUserData, "missing user field %s", f)
	}
	return nil
}

// applyAcceptTerms records a freshly supplied acceptance date when it is not
// in the future and more recent than the stored one. Stale or future-dated
// submissions are silently ignored.
func applyAcceptTerms(u *models.User, supplied *time.Time, now time.Time) {
	if supplied == nil || supplied.After(now) {
		return
	}
	if u.AcceptTermsDate == nil || supplied.After(*u.AcceptTermsDate) {
		u.AcceptTermsDate = supplied
	}
}

// checkTermsAccepted verifies a valid acceptance exists: present, not in the
// future, and not predating the configured terms revision date.
func checkTermsAccepted(u *models.User, termsLastUpdate, now time.Time) error {
	if u.AcceptTermsDate == nil {
		return apperr.New(apperr.CodeAcceptTermsMissing, "terms have not been accepted")
	}
	if u.AcceptTermsDate.After(now) {
		return apperr.New(apperr.CodeAcceptTermsMissing, "terms acceptance date is in the future")
	}
	if !termsLastUpdate.IsZero() && u.AcceptTermsDate.Before(termsLastUpdate) {
		return apperr.New(apperr.CodeAcceptTermsMissing, "terms acceptance predates the latest terms update")
	}
	return nil
}
