// Package enrolment is the orchestrator behind enrolment, renewal and
// payment reconciliation. Every public operation runs its read-modify-write
// of Payment + Membership + User inside one database transaction; gateway
// calls happen strictly before any local mutation and notifications go out
// only after the transaction committed.
package enrolment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/app/service/catalog"
	membershipsvc "github.com/lendlib/membership/internal/app/service/membership"
	"github.com/lendlib/membership/internal/app/service/notification"
	paymentsvc "github.com/lendlib/membership/internal/app/service/payment"
	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/internal/platform/usermgr"
	"github.com/lendlib/membership/pkg/apperr"
	cfgpkg "github.com/lendlib/membership/pkg/config"
	"github.com/lendlib/membership/pkg/logctx"
	"github.com/lendlib/membership/pkg/types"
)

const stroomProject = "stroom"

type Engine struct {
	cfg         *cfgpkg.Config
	log         *zap.SugaredLogger
	db          *gorm.DB
	catalog     *catalog.Catalog
	memberships *membershipsvc.Service
	payments    *paymentsvc.Service
	users       usermgr.Manager
	gateway     gateway.Client
	notify      notification.Notifier

	termsLastUpdate time.Time
}

func NewEngine(
	cfg *cfgpkg.Config,
	log *zap.SugaredLogger,
	db *gorm.DB,
	cat *catalog.Catalog,
	memberships *membershipsvc.Service,
	payments *paymentsvc.Service,
	users usermgr.Manager,
	gw gateway.Client,
	notify notification.Notifier,
) (*Engine, error) {
	terms, err := cfg.TermsLastUpdate()
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:             cfg,
		log:             log,
		db:              db,
		catalog:         cat,
		memberships:     memberships,
		payments:        payments,
		users:           users,
		gateway:         gw,
		notify:          notify,
		termsLastUpdate: terms,
	}, nil
}

type EnrolRequest struct {
	UserID           string
	OrderID          string
	PaymentMode      types.PaymentMode
	MembershipTypeID string
	PaymentCompleted bool
	StartDate        *time.Time
	AcceptTermsDate  *time.Time
}

type RenewRequest struct {
	UserID           string
	OrderID          string
	PaymentMode      types.PaymentMode
	PaymentCompleted bool
	AcceptTermsDate  *time.Time
}

type GatewayStartRequest struct {
	UserID           string
	OrderID          string
	RedirectURL      string
	Method           string
	MembershipTypeID string
	AcceptTermsDate  *time.Time
}

// Enrol registers a first-time membership paid through a transfer-like mode.
// The returned payment is OPEN unless PaymentCompleted confirmed it in the
// same call.
func (e *Engine) Enrol(ctx context.Context, req *EnrolRequest) (*models.Payment, error) {
	if !req.PaymentMode.TransferLike() {
		return nil, apperr.Newf(apperr.CodeUnexpectedPaymentMode, "mode %s requires the gateway flow", req.PaymentMode)
	}
	plan, err := e.enrolmentPlan(req.MembershipTypeID)
	if err != nil {
		return nil, err
	}

	var (
		pay  *models.Payment
		user *models.User
	)
	notices := &noticeQueue{}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = e.loadUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		// A disabled user re-enters the funnel through CHECK_PAYMENT.
		if user.State == types.UserStateDisabled {
			user.State = types.UserStateCheckPayment
		}
		if err := checkUserStateEnrolment(user); err != nil {
			return err
		}
		if err := checkUserInfo(user); err != nil {
			return err
		}
		applyAcceptTerms(user, req.AcceptTermsDate, time.Now())
		if err := checkTermsAccepted(user, e.termsLastUpdate, time.Now()); err != nil {
			return err
		}

		pay, err = e.payments.Lookup(ctx, tx, req.OrderID, user.ID, req.PaymentMode)
		if err != nil {
			return err
		}
		if pay != nil && pay.State != types.PaymentStateOpen {
			return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment for order %s is %s, expected OPEN", req.OrderID, pay.State)
		}

		m, err := e.enrolmentMembership(ctx, tx, user, plan, req.PaymentMode, req.StartDate)
		if err != nil {
			return err
		}
		user.StampFromMembership(m)
		if user.Role == types.UserRoleSupporter {
			user.Role = types.UserRoleMember
		}

		if pay == nil {
			pay, err = e.payments.Create(ctx, tx, &models.Payment{
				OrderID:      req.OrderID,
				UserID:       user.ID,
				Mode:         req.PaymentMode,
				Amount:       plan.Price,
				Currency:     e.currency(plan),
				MembershipID: &m.ID,
			})
			if err != nil {
				return err
			}
		}
		if m.PaymentID == nil {
			m.PaymentID = &pay.ID
			if err := tx.WithContext(ctx).Save(m).Error; err != nil {
				return fmt.Errorf("failed to link payment to membership %s: %w", m.ID, err)
			}
		}

		if req.PaymentCompleted {
			if err := e.payments.ConfirmManual(ctx, tx, pay); err != nil {
				notices.failure(user, fmt.Sprintf("manual enrolment confirmation rejected: %v", err))
				return err
			}
			if err := e.memberships.Activate(ctx, tx, user, m); err != nil {
				return err
			}
		}
		return e.users.Update(ctx, tx, user, usermgr.SyncInventory)
	})

	notices.flush(ctx, e.notify, err)
	if err != nil {
		return nil, err
	}

	e.notify.EnrolmentConfirmation(ctx, user, req.PaymentMode)
	if plan.Name == types.MembershipTypeStroom {
		e.notify.StroomNotice(ctx, user)
		if req.PaymentCompleted {
			e.users.AddToProject(ctx, user, stroomProject)
		}
	}
	return pay, nil
}

// Renew opens the successor coverage period paid through a transfer-like
// mode. The renewal membership stays PENDING until its payment confirms.
func (e *Engine) Renew(ctx context.Context, req *RenewRequest) (*models.Payment, error) {
	if !req.PaymentMode.TransferLike() {
		return nil, apperr.Newf(apperr.CodeUnexpectedPaymentMode, "mode %s requires the gateway flow", req.PaymentMode)
	}

	var (
		pay  *models.Payment
		user *models.User
		plan *types.MembershipType
	)
	notices := &noticeQueue{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = e.loadUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := checkUserStateRenewal(user); err != nil {
			return err
		}
		applyAcceptTerms(user, req.AcceptTermsDate, time.Now())
		if err := checkTermsAccepted(user, e.termsLastUpdate, time.Now()); err != nil {
			return err
		}

		current, err := e.memberships.FindActive(ctx, tx, user)
		if err != nil {
			return err
		}
		plan, err = e.renewalPlan(current)
		if err != nil {
			return err
		}

		pay, err = e.payments.Lookup(ctx, tx, req.OrderID, user.ID, req.PaymentMode)
		if err != nil {
			return err
		}
		if pay != nil && pay.State != types.PaymentStateOpen {
			return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment for order %s is %s, expected OPEN", req.OrderID, pay.State)
		}

		renewal, err := e.pendingRenewal(ctx, tx, user, current, plan, req.PaymentMode)
		if err != nil {
			return err
		}

		if pay == nil {
			pay, err = e.payments.Create(ctx, tx, &models.Payment{
				OrderID:      req.OrderID,
				UserID:       user.ID,
				Mode:         req.PaymentMode,
				Amount:       plan.Price,
				Currency:     e.currency(plan),
				MembershipID: &renewal.ID,
			})
			if err != nil {
				return err
			}
		}
		if renewal.PaymentID == nil {
			renewal.PaymentID = &pay.ID
			if err := tx.WithContext(ctx).Save(renewal).Error; err != nil {
				return fmt.Errorf("failed to link payment to membership %s: %w", renewal.ID, err)
			}
		}

		user.PaymentMode = req.PaymentMode
		if req.PaymentCompleted {
			if err := e.payments.ConfirmManual(ctx, tx, pay); err != nil {
				notices.failure(user, fmt.Sprintf("manual renewal confirmation rejected: %v", err))
				return err
			}
			if err := e.memberships.Activate(ctx, tx, user, renewal); err != nil {
				return err
			}
		}
		return e.users.Update(ctx, tx, user, usermgr.SyncInventory)
	})

	notices.flush(ctx, e.notify, err)
	if err != nil {
		return nil, err
	}

	e.notify.RenewalConfirmation(ctx, user, req.PaymentMode)
	if plan.Name == types.MembershipTypeStroom {
		e.notify.StroomNotice(ctx, user)
	}
	return pay, nil
}

// EnrolByGateway creates the remote payment session for a first-time
// enrolment. The session is created before any local write; the PENDING
// membership for the requested plan plus the OPEN payment row recording the
// attempt are committed afterwards, so the success webhook settles against
// the plan the member actually bought.
func (e *Engine) EnrolByGateway(ctx context.Context, req *GatewayStartRequest) (*gateway.Session, error) {
	plan, err := e.enrolmentPlan(req.MembershipTypeID)
	if err != nil {
		return nil, err
	}

	user, err := e.loadUser(ctx, e.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.State == types.UserStateDisabled {
		user.State = types.UserStateCheckPayment
	}
	if err := checkUserStateEnrolment(user); err != nil {
		return nil, err
	}
	if err := checkUserInfo(user); err != nil {
		return nil, err
	}
	applyAcceptTerms(user, req.AcceptTermsDate, time.Now())
	if err := checkTermsAccepted(user, e.termsLastUpdate, time.Now()); err != nil {
		return nil, err
	}
	if err := e.checkReusablePayment(ctx, req.OrderID, user.ID); err != nil {
		return nil, err
	}

	endDate := membershipsvc.ComputeMembershipEndDate(time.Now(), plan)
	session, err := e.createSession(ctx, req, user, plan, types.ProductEnrolment, endDate)
	if err != nil {
		return nil, err
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		m, err := e.enrolmentMembership(ctx, tx, user, plan, types.PaymentModeMollie, nil)
		if err != nil {
			return err
		}
		user.StampFromMembership(m)
		user.PaymentMode = types.PaymentModeMollie

		pay, err := e.payments.Create(ctx, tx, &models.Payment{
			OrderID:      req.OrderID,
			UserID:       user.ID,
			Mode:         types.PaymentModeMollie,
			Amount:       plan.Price,
			Currency:     e.currency(plan),
			ExternalID:   session.ID,
			MembershipID: &m.ID,
		})
		if err != nil {
			return err
		}
		if err := e.refreshPaymentSession(ctx, tx, pay, session.ID, &m.ID); err != nil {
			return err
		}
		if m.PaymentID == nil {
			m.PaymentID = &pay.ID
			if err := tx.WithContext(ctx).Save(m).Error; err != nil {
				return fmt.Errorf("failed to link payment to membership %s: %w", m.ID, err)
			}
		}
		return e.users.Update(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// RenewByGateway creates the remote payment session for a renewal. The
// prospective membership end date travels in the session metadata and comes
// back on the webhook.
func (e *Engine) RenewByGateway(ctx context.Context, req *GatewayStartRequest) (*gateway.Session, error) {
	user, err := e.loadUser(ctx, e.db, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkUserStateRenewal(user); err != nil {
		return nil, err
	}
	applyAcceptTerms(user, req.AcceptTermsDate, time.Now())
	if err := checkTermsAccepted(user, e.termsLastUpdate, time.Now()); err != nil {
		return nil, err
	}

	current, err := e.memberships.FindActive(ctx, e.db, user)
	if err != nil {
		return nil, err
	}
	plan, err := e.renewalPlan(current)
	if err != nil {
		return nil, err
	}
	if err := e.checkReusablePayment(ctx, req.OrderID, user.ID); err != nil {
		return nil, err
	}

	start := time.Now()
	if current != nil && current.ExpiresAt.After(start) {
		start = current.ExpiresAt
	}
	endDate := membershipsvc.ComputeMembershipEndDate(start, plan)

	session, err := e.createSession(ctx, req, user, plan, types.ProductRenewal, endDate)
	if err != nil {
		return nil, err
	}

	err = e.db.Transaction(func(tx *gorm.DB) error {
		renewal, err := e.pendingRenewal(ctx, tx, user, current, plan, types.PaymentModeMollie)
		if err != nil {
			return err
		}
		pay, err := e.payments.Create(ctx, tx, &models.Payment{
			OrderID:      req.OrderID,
			UserID:       user.ID,
			Mode:         types.PaymentModeMollie,
			Amount:       plan.Price,
			Currency:     e.currency(plan),
			ExternalID:   session.ID,
			MembershipID: &renewal.ID,
		})
		if err != nil {
			return err
		}
		if err := e.refreshPaymentSession(ctx, tx, pay, session.ID, &renewal.ID); err != nil {
			return err
		}
		if renewal.PaymentID == nil {
			renewal.PaymentID = &pay.ID
			if err := tx.WithContext(ctx).Save(renewal).Error; err != nil {
				return fmt.Errorf("failed to link payment to membership %s: %w", renewal.ID, err)
			}
		}
		user.PaymentMode = types.PaymentModeMollie
		return e.users.Update(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ProcessGatewayNotification reconciles an asynchronous gateway webhook with
// the local ledger. Deliveries may be duplicated or out of order; when the
// mapped state equals the stored one the call performs zero writes and sends
// zero notifications.
func (e *Engine) ProcessGatewayNotification(ctx context.Context, gatewayPaymentID string) (resErr error) {
	remote, err := e.gateway.Fetch(ctx, gatewayPaymentID)
	if err != nil {
		logctx.FromCtx(ctx, e.log).Errorf("gateway fetch failed for %s: %v", gatewayPaymentID, err)
		return apperr.Wrap(apperr.CodeGatewayException, "failed to fetch gateway payment", err)
	}
	meta := remote.Metadata
	if meta.OrderID == "" || meta.UserID == "" {
		return apperr.Newf(apperr.CodeUnknownPayment, "gateway payment %s carries no reconciliation metadata", gatewayPaymentID)
	}

	e.auditReceived(ctx, remote)
	defer func() { e.auditHandled(ctx, remote, resErr) }()

	notices := &noticeQueue{}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		pay, err := e.payments.Lookup(ctx, tx, meta.OrderID, meta.UserID, types.PaymentModeMollie)
		if err != nil {
			return err
		}
		if pay == nil {
			// First sighting of this order: the session row was lost or the
			// payment was created out of band. Record it with the remote
			// amount before applying the state.
			pay, err = e.payments.Create(ctx, tx, &models.Payment{
				OrderID:    meta.OrderID,
				UserID:     meta.UserID,
				Mode:       types.PaymentModeMollie,
				Amount:     remote.Amount,
				Currency:   remote.Currency,
				ExternalID: remote.ID,
			})
			if err != nil {
				return err
			}
		}

		newState := paymentsvc.MapGatewayStatus(remote)
		changed, err := e.payments.ApplyGatewayState(ctx, tx, pay, newState)
		if err != nil {
			return err
		}
		if !changed {
			logctx.FromCtx(ctx, e.log).Infow("gateway notification redelivered, no state change",
				"order_id", meta.OrderID, "state", newState)
			return nil
		}

		user, err := e.loadUser(ctx, tx, meta.UserID)
		if err != nil {
			return err
		}

		switch types.ProductKind(meta.ProductID) {
		case types.ProductEnrolment:
			if err := e.settleEnrolment(ctx, tx, user, pay, newState, notices); err != nil {
				return err
			}
		case types.ProductRenewal:
			if err := e.settleRenewal(ctx, tx, user, pay, newState, notices); err != nil {
				return err
			}
		default:
			return apperr.Newf(apperr.CodeUnknownPayment, "gateway payment %s carries unknown product %q", gatewayPaymentID, meta.ProductID)
		}
		return e.users.Update(ctx, tx, user, usermgr.SyncInventory)
	})

	notices.flush(ctx, e.notify, err)
	return err
}

func (e *Engine) settleEnrolment(ctx context.Context, tx *gorm.DB, user *models.User, pay *models.Payment, state types.PaymentState, notices *noticeQueue) error {
	switch {
	case state == types.PaymentStateSuccess:
		if user.State != types.UserStateCheckPayment {
			// Redelivered success after activation, or an admin already
			// settled the user; nothing to do.
			return nil
		}
		m, err := e.linkedMembership(ctx, tx, user, pay)
		if err != nil {
			return err
		}
		if m == nil {
			m, err = e.memberships.CreateEnrolment(ctx, tx, user, e.catalog.Regular(), types.PaymentModeMollie, time.Now())
			if err != nil {
				return err
			}
			pay.MembershipID = &m.ID
			if err := tx.WithContext(ctx).Save(pay).Error; err != nil {
				return fmt.Errorf("failed to link membership to payment %s: %w", pay.ID, err)
			}
		}
		if err := e.memberships.Activate(ctx, tx, user, m); err != nil {
			return err
		}
		notices.confirm(user, types.PaymentModeMollie, types.ProductEnrolment)
	case state.Failure():
		if m, err := e.linkedMembership(ctx, tx, user, pay); err != nil {
			return err
		} else if m != nil && !m.Active() {
			if err := e.memberships.Cancel(ctx, tx, m); err != nil {
				return err
			}
		}
		notices.failure(user, fmt.Sprintf("enrolment payment for order %s ended in state %s", pay.OrderID, state))
	}
	return nil
}

func (e *Engine) settleRenewal(ctx context.Context, tx *gorm.DB, user *models.User, pay *models.Payment, state types.PaymentState, notices *noticeQueue) error {
	switch {
	case state == types.PaymentStateSuccess:
		if pay.MembershipID == nil {
			// Corrupted linkage: a successful renewal payment must reference
			// the pending membership it settles. Never activate blindly.
			notices.failure(user, fmt.Sprintf("renewal payment for order %s confirmed but carries no membership", pay.OrderID))
			return apperr.Newf(apperr.CodeUnexpectedConfirmation, "renewal payment %s has no linked membership", pay.ID)
		}
		m, err := e.memberships.Find(ctx, tx, *pay.MembershipID)
		if err != nil {
			notices.failure(user, fmt.Sprintf("renewal payment for order %s references missing membership", pay.OrderID))
			return apperr.Newf(apperr.CodeUnexpectedConfirmation, "membership %s of payment %s not found", *pay.MembershipID, pay.ID)
		}
		if err := e.memberships.Activate(ctx, tx, user, m); err != nil {
			return err
		}
		notices.confirm(user, types.PaymentModeMollie, types.ProductRenewal)
	case state.Failure():
		if m, err := e.linkedMembership(ctx, tx, user, pay); err != nil {
			return err
		} else if m != nil && !m.Active() {
			if err := e.memberships.Cancel(ctx, tx, m); err != nil {
				return err
			}
		}
		notices.failure(user, fmt.Sprintf("renewal payment for order %s ended in state %s", pay.OrderID, state))
	}
	return nil
}

// ConfirmPayment is the staff-side confirmation of a transfer-like payment.
// Safe to retry: a second call on a settled payment returns the same coded
// error without re-activating or re-notifying.
func (e *Engine) ConfirmPayment(ctx context.Context, userID string, mode types.PaymentMode) (*models.Payment, error) {
	if !mode.TransferLike() {
		return nil, apperr.Newf(apperr.CodeUnexpectedPaymentMode, "mode %s is settled by the gateway", mode)
	}

	var (
		pay  *models.Payment
		user *models.User
	)
	notices := &noticeQueue{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = e.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		pay, err = e.findManualPayment(ctx, tx, user, mode, notices)
		if err != nil {
			return err
		}
		if err := e.payments.ConfirmManual(ctx, tx, pay); err != nil {
			notices.failure(user, fmt.Sprintf("payment confirmation for order %s rejected: %v", pay.OrderID, err))
			return err
		}
		m, err := e.linkedMembership(ctx, tx, user, pay)
		if err != nil {
			return err
		}
		if m != nil {
			if err := e.memberships.Activate(ctx, tx, user, m); err != nil {
				return err
			}
		} else {
			user.State = types.UserStateActive
		}
		return e.users.Update(ctx, tx, user, usermgr.SyncInventory)
	})

	notices.flush(ctx, e.notify, err)
	if err != nil {
		return nil, err
	}

	e.notify.EnrolmentSuccessNotice(ctx, user)
	if mode == types.PaymentModeStroom {
		// Best effort: the payment is already SUCCESS, a failed project
		// registration is logged inside AddToProject and not rolled back.
		e.users.AddToProject(ctx, user, stroomProject)
	}
	return pay, nil
}

// DeclinePayment is the staff-side rejection of a transfer-like payment.
func (e *Engine) DeclinePayment(ctx context.Context, userID string, mode types.PaymentMode) (*models.Payment, error) {
	if !mode.TransferLike() {
		return nil, apperr.Newf(apperr.CodeUnexpectedPaymentMode, "mode %s is settled by the gateway", mode)
	}

	var (
		pay  *models.Payment
		user *models.User
	)
	notices := &noticeQueue{}
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = e.loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		pay, err = e.findManualPayment(ctx, tx, user, mode, notices)
		if err != nil {
			return err
		}
		if err := e.payments.Decline(ctx, tx, pay); err != nil {
			return err
		}
		if m, err := e.linkedMembership(ctx, tx, user, pay); err != nil {
			return err
		} else if m != nil && !m.Active() {
			if err := e.memberships.Cancel(ctx, tx, m); err != nil {
				return err
			}
		}
		user.State = types.UserStateDeleted
		return e.users.Update(ctx, tx, user, usermgr.SyncInventory)
	})

	notices.flush(ctx, e.notify, err)
	if err != nil {
		return nil, err
	}
	e.notify.PaymentDeclineNotice(ctx, user, pay)
	return pay, nil
}

// helpers

func (e *Engine) loadUser(ctx context.Context, tx *gorm.DB, userID string) (*models.User, error) {
	var u models.User
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.CodeUnknownUser, "no user found with id %s", userID)
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID, err)
	}
	return &u, nil
}

func (e *Engine) enrolmentPlan(id string) (*types.MembershipType, error) {
	if id == "" {
		if plan := e.catalog.Regular(); plan != nil {
			return plan, nil
		}
		return nil, apperr.New(apperr.CodeUnexpectedMembershipType, "no regular membership type configured")
	}
	return e.catalog.Find(id)
}

func (e *Engine) renewalPlan(current *models.Membership) (*types.MembershipType, error) {
	if current == nil {
		return e.enrolmentPlan("")
	}
	plan, err := e.catalog.Find(current.SubscriptionID)
	if err != nil {
		return nil, err
	}
	return e.catalog.NextForRenewal(plan)
}

// enrolmentMembership reuses the membership the user snapshot already points
// at, or opens the first coverage period.
func (e *Engine) enrolmentMembership(ctx context.Context, tx *gorm.DB, user *models.User, plan *types.MembershipType, mode types.PaymentMode, startDate *time.Time) (*models.Membership, error) {
	if user.ActiveMembershipID != nil {
		m, err := e.memberships.Find(ctx, tx, *user.ActiveMembershipID)
		if err == nil {
			m.LastPaymentMode = mode
			if err := tx.WithContext(ctx).Save(m).Error; err != nil {
				return nil, fmt.Errorf("failed to update membership %s: %w", m.ID, err)
			}
			return m, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	start := time.Now()
	if startDate != nil {
		start = *startDate
	}
	return e.memberships.CreateEnrolment(ctx, tx, user, plan, mode, start)
}

// pendingRenewal reuses an existing PENDING renewal for the user or creates
// one, so a retried renewal request doesn't stack coverage periods. A reused
// period is re-plotted onto the resolved plan when it differs, covering the
// case where the successor plan changed between attempts.
func (e *Engine) pendingRenewal(ctx context.Context, tx *gorm.DB, user *models.User, current *models.Membership, plan *types.MembershipType, mode types.PaymentMode) (*models.Membership, error) {
	var existing models.Membership
	err := tx.WithContext(ctx).
		Where("contact_id = ? AND status = ?", user.ID, types.MembershipStatusPending).
		First(&existing).Error
	if err == nil {
		if existing.SubscriptionID != plan.ID {
			existing.SubscriptionID = plan.ID
			existing.ExpiresAt = membershipsvc.ComputeMembershipEndDate(existing.StartAt, plan)
		}
		existing.LastPaymentMode = mode
		if err := tx.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update membership %s: %w", existing.ID, err)
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to find pending renewal for user %s: %w", user.ID, err)
	}
	return e.memberships.CreateRenewal(ctx, tx, user, current, plan, mode)
}

// linkedMembership resolves the membership a payment settles: its explicit
// link first, the user's referenced membership as fallback.
func (e *Engine) linkedMembership(ctx context.Context, tx *gorm.DB, user *models.User, pay *models.Payment) (*models.Membership, error) {
	id := pay.MembershipID
	if id == nil {
		id = user.ActiveMembershipID
	}
	if id == nil {
		return nil, nil
	}
	m, err := e.memberships.Find(ctx, tx, *id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (e *Engine) findManualPayment(ctx context.Context, tx *gorm.DB, user *models.User, mode types.PaymentMode, notices *noticeQueue) (*models.Payment, error) {
	pay, err := e.payments.FindForManualAction(ctx, tx, user.ID, mode)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeUnexpectedPaymentState) {
			// More than one OPEN payment for the same (user, mode): data
			// integrity problem upstream, flag for manual follow up.
			notices.failure(user, err.Error())
		}
		return nil, err
	}
	return pay, nil
}

// checkReusablePayment enforces the existing-payment precondition for the
// gateway flows: a payment already recorded for (order, user, MOLLIE) must
// still be OPEN before a new checkout session may be created for it.
func (e *Engine) checkReusablePayment(ctx context.Context, orderID, userID string) error {
	existing, err := e.payments.Lookup(ctx, e.db, orderID, userID, types.PaymentModeMollie)
	if err != nil {
		return err
	}
	if existing != nil && existing.State != types.PaymentStateOpen {
		return apperr.Newf(apperr.CodeUnexpectedPaymentState, "payment for order %s is %s, expected OPEN", orderID, existing.State)
	}
	return nil
}

// refreshPaymentSession repoints a reused OPEN payment at the checkout
// session just created, so the webhook reconciles against the live session
// instead of an abandoned one.
func (e *Engine) refreshPaymentSession(ctx context.Context, tx *gorm.DB, pay *models.Payment, sessionID string, membershipID *string) error {
	changed := false
	if pay.ExternalID != sessionID {
		pay.ExternalID = sessionID
		changed = true
	}
	if pay.MembershipID == nil && membershipID != nil {
		pay.MembershipID = membershipID
		changed = true
	}
	if !changed {
		return nil
	}
	if err := tx.WithContext(ctx).Save(pay).Error; err != nil {
		return fmt.Errorf("failed to refresh payment %s session: %w", pay.ID, err)
	}
	return nil
}

func (e *Engine) currency(plan *types.MembershipType) string {
	if plan.Currency != "" {
		return plan.Currency
	}
	return e.cfg.Currency
}

func (e *Engine) createSession(ctx context.Context, req *GatewayStartRequest, user *models.User, plan *types.MembershipType, product types.ProductKind, endDate time.Time) (*gateway.Session, error) {
	description := fmt.Sprintf("Tool library enrolment %s %s", user.Firstname, user.Lastname)
	if product == types.ProductRenewal {
		description = fmt.Sprintf("Tool library membership renewal %s %s", user.Firstname, user.Lastname)
	}
	session, err := e.gateway.CreateSession(ctx, &gateway.CreateSessionRequest{
		Amount:      plan.Price,
		Currency:    e.currency(plan),
		Description: description,
		RedirectURL: fmt.Sprintf("%s?orderId=%s", req.RedirectURL, req.OrderID),
		WebhookURL:  fmt.Sprintf("https://%s/enrolment/%s", e.cfg.Server.PublicHost, req.OrderID),
		Locale:      e.cfg.Locale,
		Metadata: gateway.SessionMetadata{
			OrderID:           req.OrderID,
			UserID:            user.ID,
			ProductID:         string(product),
			MembershipEndDate: endDate.Format("2006-01-02"),
		},
		Method: req.Method,
	})
	if err != nil {
		logctx.FromCtx(ctx, e.log).Errorf("gateway session creation failed: %v", err)
		return nil, apperr.Wrap(apperr.CodeGatewayException, "failed to create gateway payment session", err)
	}
	return session, nil
}
