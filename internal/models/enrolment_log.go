package models

import (
	"time"

	"gorm.io/datatypes"
)

type EnrolmentLogStatus string

const (
	EnrolmentLogStatusReceived     EnrolmentLogStatus = "received"
	EnrolmentLogStatusHandled      EnrolmentLogStatus = "handled"
	EnrolmentLogStatusHandleFailed EnrolmentLogStatus = "handle_failed"
)

// EnrolmentLog is the audit trail around gateway webhook processing: one
// "received" row when the notification arrives and one "handled" or
// "handle_failed" row when processing finishes.
type EnrolmentLog struct {
	ID               string             `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID          string             `gorm:"column:order_id;type:varchar(64);index" json:"order_id"`
	UserID           *string            `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	TraceID          string             `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	GatewayPaymentID string             `gorm:"column:gateway_payment_id;type:varchar(128)" json:"gateway_payment_id"`
	NotificationTime time.Time          `gorm:"column:notification_time" json:"notification_time"`
	Data             datatypes.JSON     `gorm:"column:data;type:jsonb" json:"data"`
	Result           *datatypes.JSON    `gorm:"column:result;type:jsonb" json:"result"`
	Status           EnrolmentLogStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (EnrolmentLog) TableName() string { return "enrolment_log" }
