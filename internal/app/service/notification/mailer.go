package notification

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lendlib/membership/internal/models"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/logctx"
	"github.com/lendlib/membership/pkg/types"
)

// Mailer sends plain-text notification mails over SMTP. Rendering stays
// deliberately minimal; templating is handled by the mail provider side.
type Mailer struct {
	cfg *cfgpkg.Config
	log *zap.SugaredLogger
}

func NewMailer(cfg *cfgpkg.Config, log *zap.SugaredLogger) Notifier {
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) EnrolmentConfirmation(ctx context.Context, user *models.User, mode types.PaymentMode) {
	m.send(ctx, user.Email, "Welcome to the tool library",
		fmt.Sprintf("Dear %s, your enrolment was registered (payment mode %s).", user.Firstname, mode))
}

func (m *Mailer) RenewalConfirmation(ctx context.Context, user *models.User, mode types.PaymentMode) {
	m.send(ctx, user.Email, "Your membership renewal",
		fmt.Sprintf("Dear %s, your membership renewal was registered (payment mode %s).", user.Firstname, mode))
}

func (m *Mailer) EnrolmentSuccessNotice(ctx context.Context, user *models.User) {
	m.send(ctx, m.cfg.Notify.EnrolmentAddress, "Enrolment completed",
		fmt.Sprintf("User %s %s (%s) completed enrolment/renewal.", user.Firstname, user.Lastname, user.ID))
}

func (m *Mailer) EnrolmentFailedNotice(ctx context.Context, user *models.User, reason string) {
	m.send(ctx, m.cfg.Notify.EnrolmentAddress, "Enrolment needs follow up",
		fmt.Sprintf("User %s %s (%s): %s", user.Firstname, user.Lastname, user.ID, reason))
}

func (m *Mailer) PaymentDeclineNotice(ctx context.Context, user *models.User, p *models.Payment) {
	m.send(ctx, user.Email, "Your payment was declined",
		fmt.Sprintf("Dear %s, your payment for order %s was declined.", user.Firstname, p.OrderID))
}

func (m *Mailer) StroomNotice(ctx context.Context, user *models.User) {
	m.send(ctx, m.cfg.Notify.StroomAddress, "Stroom enrolment",
		fmt.Sprintf("User %s %s (%s) enrolled through the stroom program.", user.Firstname, user.Lastname, user.ID))
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if m.cfg.Notify.SMTPHost == "" {
		logctx.FromCtx(ctx, m.log).Infow("mail skipped, no smtp host configured", "to", to, "subject", subject)
		return
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Notify.SMTPHost, m.cfg.Notify.SMTPPort)
	msg := strings.Join([]string{
		"From: " + m.cfg.Notify.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	go func() {
		if err := smtp.SendMail(addr, nil, m.cfg.Notify.From, []string{to}, []byte(msg)); err != nil {
			m.log.Errorw("mail send failed", "to", to, "subject", subject, "err", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(NewMailer),
)
