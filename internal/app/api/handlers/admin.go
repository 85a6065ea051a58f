package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lendlib/membership/pkg/response"
	"github.com/lendlib/membership/pkg/types"
)

type manualActionRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	PaymentMode string `json:"payment_mode" binding:"required"`
}

// ApiConfirmPayment is the staff confirmation of a transfer-like payment.
func ApiConfirmPayment(eng EnrolmentEngine, ops *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		mode, ok := types.ParsePaymentMode(req.PaymentMode)
		if !ok {
			writeBadRequest(c, "unknown payment_mode "+req.PaymentMode)
			return
		}
		pay, err := eng.ConfirmPayment(c.Request.Context(), req.UserID, mode)
		countOp(ops, "confirm_payment", err)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(mapPayment(pay)))
	}
}

// ApiDeclinePayment is the staff rejection of a transfer-like payment.
func ApiDeclinePayment(eng EnrolmentEngine, ops *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req manualActionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		mode, ok := types.ParsePaymentMode(req.PaymentMode)
		if !ok {
			writeBadRequest(c, "unknown payment_mode "+req.PaymentMode)
			return
		}
		pay, err := eng.DeclinePayment(c.Request.Context(), req.UserID, mode)
		countOp(ops, "decline_payment", err)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(mapPayment(pay)))
	}
}

func RegisterAdminRoutes(r gin.IRouter, eng EnrolmentEngine, ops *prometheus.CounterVec) {
	r.POST("/enrolment/confirm", ApiConfirmPayment(eng, ops))
	r.POST("/enrolment/decline", ApiDeclinePayment(eng, ops))
}
