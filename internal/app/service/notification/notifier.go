// Package notification is the outbound notification port. Sends are
// fire-and-forget: a failed send is logged and never fails the operation
// that triggered it.
package notification

import (
	"context"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/pkg/types"
)

type Notifier interface {
	// EnrolmentConfirmation goes to the new member.
	EnrolmentConfirmation(ctx context.Context, user *models.User, mode types.PaymentMode)
	// RenewalConfirmation goes to the renewing member.
	RenewalConfirmation(ctx context.Context, user *models.User, mode types.PaymentMode)
	// EnrolmentSuccessNotice goes to the internal enrolment address.
	EnrolmentSuccessNotice(ctx context.Context, user *models.User)
	// EnrolmentFailedNotice goes to the internal enrolment address with a
	// free-text reason for manual follow up.
	EnrolmentFailedNotice(ctx context.Context, user *models.User, reason string)
	// PaymentDeclineNotice informs the member their payment was declined.
	PaymentDeclineNotice(ctx context.Context, user *models.User, p *models.Payment)
	// StroomNotice goes to the stroom program address.
	StroomNotice(ctx context.Context, user *models.User)
}
