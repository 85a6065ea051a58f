package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lendlib/membership/pkg/apperr"
	"github.com/lendlib/membership/pkg/response"
)

type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// writeDomainError maps a coded domain error onto an HTTP status plus the
// response envelope. Unknown errors become a generic 500 without leaking the
// internal message.
func writeDomainError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status, respCode := httpMapping(code)

	body := errorBody{Code: string(code), Message: err.Error()}
	if code == "" {
		body.Message = "internal error"
	}
	c.JSON(status, response.ErrorT(respCode, body))
}

func httpMapping(code apperr.Code) (int, response.APIResponseCode) {
	switch code {
	case apperr.CodeAlreadyEnrolled,
		apperr.CodeNotEnrolled,
		apperr.CodeUnsupportedState,
		apperr.CodeUnexpectedPaymentState,
		apperr.CodeUnexpectedConfirmation:
		return http.StatusConflict, response.APIResponseCodeConflict
	case apperr.CodeIncompleteUserData,
		apperr.CodeAcceptTermsMissing,
		apperr.CodeUnexpectedPaymentMode,
		apperr.CodeUnexpectedMembershipType:
		return http.StatusBadRequest, response.APIResponseCodeBadRequest
	case apperr.CodeUnknownUser, apperr.CodeUnknownPayment:
		return http.StatusNotFound, response.APIResponseCodeNotFound
	case apperr.CodeGatewayException:
		return http.StatusBadGateway, response.APIResponseCodeGateway
	default:
		return http.StatusInternalServerError, response.APIResponseCodeError
	}
}

func writeBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.ErrorT(response.APIResponseCodeBadRequest, errorBody{Message: msg}))
}
