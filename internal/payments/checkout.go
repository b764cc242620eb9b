package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pawtrait/backend/internal/config"
	"github.com/pawtrait/backend/internal/models"
)

// ErrPlanUnavailable means the requested plan does not exist or is inactive.
var ErrPlanUnavailable = errors.New("plan unavailable")

// PaymentCreator persists the created-state record a checkout produces.
type PaymentCreator interface {
	Create(ctx context.Context, payment *models.Payment) error
}

// Checkout creates provider orders and the matching local payment records the
// webhook reconciler later resolves by order id.
type Checkout struct {
	keyID      string
	keySecret  string
	baseURL    string
	returnURL  string
	plans      PlanSource
	payments   PaymentCreator
	httpClient *http.Client
	log        *slog.Logger
}

func NewCheckout(cfg config.Config, plans PlanSource, payments PaymentCreator, log *slog.Logger) *Checkout {
	return &Checkout{
		keyID:     cfg.PaymentKeyID,
		keySecret: cfg.PaymentKeySecret,
		baseURL:   strings.TrimRight(cfg.PaymentBaseURL, "/"),
		returnURL: cfg.CheckoutReturnURL,
		plans:     plans,
		payments:  payments,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// Order is what the frontend needs to open the provider's payment form.
type Order struct {
	OrderID   string `json:"order_id"`
	PaymentID int64  `json:"payment_id"`
	KeyID     string `json:"key_id"`
	Amount    int    `json:"amount"`
	Currency  string `json:"currency"`
}

type providerOrderResponse struct {
	ID       string `json:"id"`
	Amount   int    `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder opens a provider order for the plan and records the payment in
// created status.
func (c *Checkout) CreateOrder(ctx context.Context, userID, planID int64) (*Order, error) {
	planRow, err := c.plans.GetByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if planRow == nil || !planRow.IsActive {
		return nil, ErrPlanUnavailable
	}

	providerOrder, err := c.createProviderOrder(ctx, planRow, userID)
	if err != nil {
		return nil, err
	}

	record := &models.Payment{
		OrderID:  providerOrder.ID,
		UserID:   userID,
		PlanID:   planRow.ID,
		Currency: planRow.Currency,
		Amount:   planRow.PriceMinorUnits,
		Status:   models.PaymentCreated,
	}
	if err := c.payments.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}

	c.log.Info("checkout order created", "order_id", providerOrder.ID, "plan_id", planRow.ID, "user_id", userID)
	return &Order{
		OrderID:   providerOrder.ID,
		PaymentID: record.ID,
		KeyID:     c.keyID,
		Amount:    planRow.PriceMinorUnits,
		Currency:  planRow.Currency,
	}, nil
}

func (c *Checkout) createProviderOrder(ctx context.Context, planRow *models.Plan, userID int64) (*providerOrderResponse, error) {
	payload := map[string]any{
		"amount":   planRow.PriceMinorUnits,
		"currency": planRow.Currency,
		"receipt":  uuid.NewString(),
		"notes": map[string]any{
			"plan_id": planRow.ID,
			"user_id": userID,
			"tier":    planRow.Tier,
		},
	}
	if c.returnURL != "" {
		payload["callback_url"] = c.returnURL
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal order payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create provider order: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read order response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider order failed: status=%d body=%s", resp.StatusCode, truncate(rawBody))
	}

	var parsed providerOrderResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if parsed.ID == "" {
		return nil, fmt.Errorf("provider order response missing id")
	}
	return &parsed, nil
}

func truncate(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
