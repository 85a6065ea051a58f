// Package gateway is the adapter for the hosted payment gateway (Mollie v2
// payments API). The enrolment engine only depends on the Client interface;
// the REST implementation lives behind it so tests can stub the gateway.
package gateway

import (
	"context"
	"time"
)

// SessionMetadata is round-tripped through the gateway and comes back on the
// webhook; it carries everything needed to reconcile the remote payment with
// the local ledger.
type SessionMetadata struct {
	OrderID           string `json:"order_id"`
	UserID            string `json:"user_id"`
	ProductID         string `json:"product_id"`
	MembershipEndDate string `json:"membership_end_date,omitempty"`
}

type CreateSessionRequest struct {
	Amount      float64
	Currency    string
	Description string
	RedirectURL string
	WebhookURL  string
	Locale      string
	Metadata    SessionMetadata
	// Method preselects a payment mean; empty shows the gateway's choice
	// screen.
	Method string
}

// Session is the remote payment session handle returned on creation.
type Session struct {
	ID          string
	CheckoutURL string
}

// RemoteStatus is the gateway's reported payment status. Exactly one of the
// status flags is expected to hold, with refunds/chargebacks layered on top
// of a paid payment.
type RemoteStatus struct {
	ID             string
	Amount         float64
	Currency       string
	Metadata       SessionMetadata
	PaidAt         *time.Time
	IsPaid         bool
	IsOpen         bool
	IsPending      bool
	IsFailed       bool
	IsExpired      bool
	IsCanceled     bool
	HasRefunds     bool
	HasChargebacks bool
}

type Client interface {
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error)
	Fetch(ctx context.Context, paymentID string) (*RemoteStatus, error)
}
