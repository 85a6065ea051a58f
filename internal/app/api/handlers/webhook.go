package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lendlib/membership/pkg/logctx"
	"github.com/lendlib/membership/pkg/response"
)

// ApiGatewayWebhook handles the asynchronous payment status notification.
// The gateway posts the payment id form-encoded as "id"; the order id in the
// path only scopes the callback URL. Duplicate deliveries are expected and
// answered 200.
func ApiGatewayWebhook(eng EnrolmentEngine, log *zap.SugaredLogger, ops *prometheus.CounterVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("orderId")
		paymentID := c.PostForm("id")
		if paymentID == "" {
			writeBadRequest(c, "missing payment id")
			return
		}
		logctx.FromGin(c, log).Infow("gateway_webhook_received", "order_id", orderID, "gateway_payment_id", paymentID)

		err := eng.ProcessGatewayNotification(c.Request.Context(), paymentID)
		countOp(ops, "gateway_webhook", err)
		if err != nil {
			logctx.FromGin(c, log).Errorw("gateway_webhook_handle_error", "order_id", orderID, "error", err.Error())
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterWebhookRoutes(r gin.IRouter, eng EnrolmentEngine, log *zap.SugaredLogger, ops *prometheus.CounterVec) {
	r.POST("/enrolment/:orderId", ApiGatewayWebhook(eng, log, ops))
}
