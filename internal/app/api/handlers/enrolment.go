package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lendlib/membership/internal/app/service/enrolment"
	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/internal/platform/gateway"
	"github.com/lendlib/membership/pkg/apperr"
	"github.com/lendlib/membership/pkg/response"
	"github.com/lendlib/membership/pkg/types"
)

// EnrolmentEngine is the slice of the enrolment engine the HTTP surface
// needs; tests substitute a stub.
type EnrolmentEngine interface {
	Enrol(ctx context.Context, req *enrolment.EnrolRequest) (*models.Payment, error)
	Renew(ctx context.Context, req *enrolment.RenewRequest) (*models.Payment, error)
	EnrolByGateway(ctx context.Context, req *enrolment.GatewayStartRequest) (*gateway.Session, error)
	RenewByGateway(ctx context.Context, req *enrolment.GatewayStartRequest) (*gateway.Session, error)
	ProcessGatewayNotification(ctx context.Context, gatewayPaymentID string) error
	ConfirmPayment(ctx context.Context, userID string, mode types.PaymentMode) (*models.Payment, error)
	DeclinePayment(ctx context.Context, userID string, mode types.PaymentMode) (*models.Payment, error)
}

const dateLayout = "2006-01-02"

type enrolRequest struct {
	UserID           string `json:"user_id" binding:"required"`
	OrderID          string `json:"order_id" binding:"required"`
	PaymentMode      string `json:"payment_mode" binding:"required"`
	MembershipTypeID string `json:"membership_type_id"`
	PaymentCompleted bool   `json:"payment_completed"`
	StartDate        string `json:"start_date"`
	AcceptTermsDate  string `json:"accept_terms_date"`
	// Gateway flow only.
	RedirectURL   string `json:"redirect_url"`
	PaymentMethod string `json:"payment_method"`
}

type renewRequest struct {
	UserID           string `json:"user_id" binding:"required"`
	OrderID          string `json:"order_id" binding:"required"`
	PaymentMode      string `json:"payment_mode" binding:"required"`
	PaymentCompleted bool   `json:"payment_completed"`
	AcceptTermsDate  string `json:"accept_terms_date"`
	RedirectURL      string `json:"redirect_url"`
	PaymentMethod    string `json:"payment_method"`
}

type paymentResp struct {
	PaymentID    string  `json:"payment_id"`
	OrderID      string  `json:"order_id"`
	UserID       string  `json:"user_id"`
	Mode         string  `json:"mode"`
	State        string  `json:"state"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
	MembershipID *string `json:"membership_id,omitempty"`
}

type sessionResp struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

func mapPayment(p *models.Payment) paymentResp {
	return paymentResp{
		PaymentID:    p.ID,
		OrderID:      p.OrderID,
		UserID:       p.UserID,
		Mode:         string(p.Mode),
		State:        string(p.State),
		Amount:       p.Amount,
		Currency:     p.Currency,
		MembershipID: p.MembershipID,
	}
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// countOp records the outcome of an engine operation on the business counter.
// The result label is "ok", the domain code, or "error".
func countOp(ops *prometheus.CounterVec, op string, err error) {
	if ops == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		if code := apperr.CodeOf(err); code != "" {
			result = string(code)
		}
	}
	ops.WithLabelValues(op, result).Inc()
}

// ApiEnrol starts a first-time enrolment. Transfer-like modes record the
// payment directly; MOLLIE creates a checkout session and returns its URL.
func ApiEnrol(eng EnrolmentEngine, ops *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req enrolRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		mode, ok := types.ParsePaymentMode(req.PaymentMode)
		if !ok {
			writeBadRequest(c, "unknown payment_mode "+req.PaymentMode)
			return
		}
		terms, err := parseDate(req.AcceptTermsDate)
		if err != nil {
			writeBadRequest(c, "accept_terms_date must be YYYY-MM-DD")
			return
		}

		if mode == types.PaymentModeMollie {
			if req.RedirectURL == "" {
				writeBadRequest(c, "redirect_url is required for gateway payments")
				return
			}
			session, err := eng.EnrolByGateway(c.Request.Context(), &enrolment.GatewayStartRequest{
				UserID:           req.UserID,
				OrderID:          req.OrderID,
				RedirectURL:      req.RedirectURL,
				Method:           req.PaymentMethod,
				MembershipTypeID: req.MembershipTypeID,
				AcceptTermsDate:  terms,
			})
			countOp(ops, "enrol_gateway", err)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			c.JSON(http.StatusOK, response.OKT(sessionResp{SessionID: session.ID, CheckoutURL: session.CheckoutURL}))
			return
		}

		start, err := parseDate(req.StartDate)
		if err != nil {
			writeBadRequest(c, "start_date must be YYYY-MM-DD")
			return
		}
		pay, err := eng.Enrol(c.Request.Context(), &enrolment.EnrolRequest{
			UserID:           req.UserID,
			OrderID:          req.OrderID,
			PaymentMode:      mode,
			MembershipTypeID: req.MembershipTypeID,
			PaymentCompleted: req.PaymentCompleted,
			StartDate:        start,
			AcceptTermsDate:  terms,
		})
		countOp(ops, "enrol", err)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(mapPayment(pay)))
	}
}

// ApiRenew opens the successor coverage period for an existing member.
func ApiRenew(eng EnrolmentEngine, ops *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req renewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		mode, ok := types.ParsePaymentMode(req.PaymentMode)
		if !ok {
			writeBadRequest(c, "unknown payment_mode "+req.PaymentMode)
			return
		}
		terms, err := parseDate(req.AcceptTermsDate)
		if err != nil {
			writeBadRequest(c, "accept_terms_date must be YYYY-MM-DD")
			return
		}

		if mode == types.PaymentModeMollie {
			if req.RedirectURL == "" {
				writeBadRequest(c, "redirect_url is required for gateway payments")
				return
			}
			session, err := eng.RenewByGateway(c.Request.Context(), &enrolment.GatewayStartRequest{
				UserID:          req.UserID,
				OrderID:         req.OrderID,
				RedirectURL:     req.RedirectURL,
				Method:          req.PaymentMethod,
				AcceptTermsDate: terms,
			})
			countOp(ops, "renew_gateway", err)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			c.JSON(http.StatusOK, response.OKT(sessionResp{SessionID: session.ID, CheckoutURL: session.CheckoutURL}))
			return
		}

		pay, err := eng.Renew(c.Request.Context(), &enrolment.RenewRequest{
			UserID:           req.UserID,
			OrderID:          req.OrderID,
			PaymentMode:      mode,
			PaymentCompleted: req.PaymentCompleted,
			AcceptTermsDate:  terms,
		})
		countOp(ops, "renew", err)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, response.OKT(mapPayment(pay)))
	}
}

func RegisterEnrolmentRoutes(r gin.IRouter, eng EnrolmentEngine, ops *prometheus.CounterVec) {
	r.POST("/enrolment", ApiEnrol(eng, ops))
	r.POST("/enrolment/renew", ApiRenew(eng, ops))
}
