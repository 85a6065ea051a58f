package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/lendlib/membership/pkg/config"
)

// MollieClient talks to the Mollie v2 payments API with bearer-token auth.
type MollieClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *zap.SugaredLogger
}

func NewMollieClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) Client {
	return &MollieClient{
		baseURL: cfg.Gateway.BaseURL,
		apiKey:  cfg.Gateway.APIKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

type mollieAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

type molliePaymentRequest struct {
	Amount      mollieAmount    `json:"amount"`
	Description string          `json:"description"`
	RedirectURL string          `json:"redirectUrl"`
	WebhookURL  string          `json:"webhookUrl"`
	Locale      string          `json:"locale"`
	Metadata    SessionMetadata `json:"metadata"`
	Method      string          `json:"method,omitempty"`
}

type molliePayment struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Amount          mollieAmount    `json:"amount"`
	AmountRefunded  *mollieAmount   `json:"amountRefunded"`
	AmountCharged   *mollieAmount   `json:"amountChargedBack"`
	PaidAt          *time.Time      `json:"paidAt"`
	Metadata        SessionMetadata `json:"metadata"`
	Links           struct {
		Checkout struct {
			Href string `json:"href"`
		} `json:"checkout"`
	} `json:"_links"`
}

func (c *MollieClient) CreateSession(ctx context.Context, req *CreateSessionRequest) (*Session, error) {
	body := molliePaymentRequest{
		Amount:      mollieAmount{Currency: req.Currency, Value: fmt.Sprintf("%.2f", req.Amount)},
		Description: req.Description,
		RedirectURL: req.RedirectURL,
		WebhookURL:  req.WebhookURL,
		Locale:      req.Locale,
		Metadata:    req.Metadata,
		Method:      req.Method,
	}
	var p molliePayment
	if err := c.do(ctx, http.MethodPost, "/payments", body, &p); err != nil {
		return nil, err
	}
	c.log.Infow("gateway session created",
		"payment_id", p.ID, "order_id", req.Metadata.OrderID, "webhook", req.WebhookURL)
	return &Session{ID: p.ID, CheckoutURL: p.Links.Checkout.Href}, nil
}

func (c *MollieClient) Fetch(ctx context.Context, paymentID string) (*RemoteStatus, error) {
	var p molliePayment
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &p); err != nil {
		return nil, err
	}

	amount, _ := strconv.ParseFloat(p.Amount.Value, 64)
	st := &RemoteStatus{
		ID:       p.ID,
		Amount:   amount,
		Currency: p.Amount.Currency,
		Metadata: p.Metadata,
		PaidAt:   p.PaidAt,
	}
	switch p.Status {
	case "paid":
		st.IsPaid = true
	case "open":
		st.IsOpen = true
	case "pending":
		st.IsPending = true
	case "failed":
		st.IsFailed = true
	case "expired":
		st.IsExpired = true
	case "canceled":
		st.IsCanceled = true
	}
	st.HasRefunds = nonZero(p.AmountRefunded)
	st.HasChargebacks = nonZero(p.AmountCharged)
	return st, nil
}

func nonZero(a *mollieAmount) bool {
	if a == nil {
		return false
	}
	v, err := strconv.ParseFloat(a.Value, 64)
	return err == nil && v > 0
}

func (c *MollieClient) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal gateway request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Status int    `json:"status"`
			Title  string `json:"title"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Detail)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

var Module = fx.Options(
	fx.Provide(NewMollieClient),
)
