package enrolment

import (
	"context"

	"github.com/lendlib/membership/internal/app/service/notification"
	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/pkg/types"
)

// noticeQueue collects notification sends decided inside a transaction so
// they go out only after it resolved. Confirmation notices are commit-only:
// a rollback discards them so no member is congratulated on state that was
// never persisted. Failure notices flush regardless of the outcome: a
// rejected confirmation still needs manual follow up.
type noticeQueue struct {
	onCommit []func(ctx context.Context, n notification.Notifier)
	always   []func(ctx context.Context, n notification.Notifier)
}

func (q *noticeQueue) confirm(user *models.User, mode types.PaymentMode, product types.ProductKind) {
	u := *user
	q.onCommit = append(q.onCommit, func(ctx context.Context, n notification.Notifier) {
		if product == types.ProductRenewal {
			n.RenewalConfirmation(ctx, &u, mode)
		} else {
			n.EnrolmentConfirmation(ctx, &u, mode)
		}
		n.EnrolmentSuccessNotice(ctx, &u)
	})
}

func (q *noticeQueue) failure(user *models.User, reason string) {
	u := *user
	q.always = append(q.always, func(ctx context.Context, n notification.Notifier) {
		n.EnrolmentFailedNotice(ctx, &u, reason)
	})
}

// flush sends the queued notices. txErr is the transaction outcome;
// commit-only notices are dropped when it is non-nil.
func (q *noticeQueue) flush(ctx context.Context, n notification.Notifier, txErr error) {
	if txErr == nil {
		for _, send := range q.onCommit {
			send(ctx, n)
		}
	}
	for _, send := range q.always {
		send(ctx, n)
	}
	q.onCommit = nil
	q.always = nil
}
