package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lendlib/membership/internal/models"
	"github.com/lendlib/membership/pkg/types"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Membership{}))
	return db
}

func TestApiGetUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testDB(t)

	m := &models.Membership{
		ID: "00000000-0000-0000-0000-000000000001", SubscriptionID: "regular",
		StartAt: time.Now(), ExpiresAt: time.Now().AddDate(1, 0, 0),
		Status: types.MembershipStatusActive, LastPaymentMode: types.PaymentModeTransfer,
	}
	require.NoError(t, db.Create(m).Error)
	require.NoError(t, db.Create(&models.User{
		ID: "u1", State: types.UserStateActive, Role: types.UserRoleMember,
		Firstname: "An", Lastname: "Peeters", ActiveMembershipID: &m.ID,
	}).Error)

	r := gin.New()
	RegisterUserRoutes(r.Group("/api/v1"), db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"firstname":"An"`)
	require.Contains(t, w.Body.String(), `"active_membership"`)
	require.Contains(t, w.Body.String(), `"subscription_id":"regular"`)
}

func TestApiGetUser_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testDB(t)

	r := gin.New()
	RegisterUserRoutes(r.Group("/api/v1"), db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
