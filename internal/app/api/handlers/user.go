package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/pkg/response"
)

type membershipView struct {
	MembershipID    string     `json:"membership_id"`
	SubscriptionID  string     `json:"subscription_id"`
	Status          string     `json:"status"`
	StartAt         time.Time  `json:"start_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	LastPaymentMode string     `json:"last_payment_mode"`
}

type userView struct {
	UserID              string          `json:"user_id"`
	State               string          `json:"state"`
	Role                string          `json:"role"`
	Firstname           string          `json:"firstname"`
	Lastname            string          `json:"lastname"`
	Email               string          `json:"email"`
	EmailState          string          `json:"email_state"`
	Address             string          `json:"address"`
	PostalCode          string          `json:"postal_code"`
	City                string          `json:"city"`
	PaymentMode         string          `json:"payment_mode"`
	MembershipStartDate *time.Time      `json:"membership_start_date"`
	MembershipEndDate   *time.Time      `json:"membership_end_date"`
	AcceptTermsDate     *time.Time      `json:"accept_terms_date"`
	ActiveMembership    *membershipView `json:"active_membership,omitempty"`
}

func mapUser(u *models.User, m *models.Membership) userView {
	v := userView{
		UserID:              u.ID,
		State:               string(u.State),
		Role:                string(u.Role),
		Firstname:           u.Firstname,
		Lastname:            u.Lastname,
		Email:               u.Email,
		EmailState:          string(u.EmailState),
		Address:             u.Address,
		PostalCode:          u.PostalCode,
		City:                u.City,
		PaymentMode:         string(u.PaymentMode),
		MembershipStartDate: u.MembershipStartDate,
		MembershipEndDate:   u.MembershipEndDate,
		AcceptTermsDate:     u.AcceptTermsDate,
	}
	if m != nil {
		v.ActiveMembership = &membershipView{
			MembershipID:    m.ID,
			SubscriptionID:  m.SubscriptionID,
			Status:          string(m.Status),
			StartAt:         m.StartAt,
			ExpiresAt:       m.ExpiresAt,
			LastPaymentMode: string(m.LastPaymentMode),
		}
	}
	return v
}

// ApiGetUser returns the member directory view: the user snapshot joined with
// the membership it references.
func ApiGetUser(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var u models.User
		if err := db.WithContext(c.Request.Context()).Where("user_id = ?", id).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, response.ErrorT(response.APIResponseCodeNotFound, errorBody{Message: "no user found with id " + id}))
				return
			}
			c.JSON(http.StatusInternalServerError, response.ErrorT(response.APIResponseCodeError, errorBody{Message: "internal error"}))
			return
		}

		var m *models.Membership
		if u.ActiveMembershipID != nil {
			var row models.Membership
			if err := db.WithContext(c.Request.Context()).Where("membership_id = ?", *u.ActiveMembershipID).First(&row).Error; err == nil {
				m = &row
			}
		}
		c.JSON(http.StatusOK, response.OKT(mapUser(&u, m)))
	}
}

func RegisterUserRoutes(r gin.IRouter, db *gorm.DB) {
	r.GET("/users/:id", ApiGetUser(db))
}
