package payments

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/backend/internal/config"
	"github.com/pawtrait/backend/internal/models"
)

type capturingPaymentCreator struct {
	created []*models.Payment
}

func (c *capturingPaymentCreator) Create(ctx context.Context, payment *models.Payment) error {
	payment.ID = int64(len(c.created) + 1)
	clone := *payment
	c.created = append(c.created, &clone)
	return nil
}

func checkoutConfig(baseURL string) config.Config {
	return config.Config{
		PaymentKeyID:      "rzp_key",
		PaymentKeySecret:  "rzp_secret",
		PaymentBaseURL:    baseURL,
		CheckoutReturnURL: "https://app.pawtrait.example/payment/return",
	}
}

func TestCreateOrderRecordsPayment(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_key", user)
		assert.Equal(t, "rzp_secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "order_77", "amount": 2499, "currency": "USD", "status": "created",
		})
	}))
	defer srv.Close()

	plans := &memPlanSource{plans: map[int64]*models.Plan{2: proPlan()}}
	creator := &capturingPaymentCreator{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCheckout(checkoutConfig(srv.URL), plans, creator, log)

	order, err := c.CreateOrder(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Equal(t, "order_77", order.OrderID)
	assert.Equal(t, "rzp_key", order.KeyID)
	assert.Equal(t, 2499, order.Amount)
	assert.Equal(t, "USD", order.Currency)

	assert.EqualValues(t, 2499, payload["amount"])
	assert.Equal(t, "https://app.pawtrait.example/payment/return", payload["callback_url"])

	require.Len(t, creator.created, 1)
	recorded := creator.created[0]
	assert.Equal(t, "order_77", recorded.OrderID)
	assert.Equal(t, int64(7), recorded.UserID)
	assert.Equal(t, models.PaymentCreated, recorded.Status)
	assert.Equal(t, recorded.ID, order.PaymentID)
}

func TestCreateOrderOmitsCallbackWhenUnset(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_78"})
	}))
	defer srv.Close()

	cfg := checkoutConfig(srv.URL)
	cfg.CheckoutReturnURL = ""
	plans := &memPlanSource{plans: map[int64]*models.Plan{2: proPlan()}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCheckout(cfg, plans, &capturingPaymentCreator{}, log)

	_, err := c.CreateOrder(context.Background(), 7, 2)
	require.NoError(t, err)
	_, hasCallback := payload["callback_url"]
	assert.False(t, hasCallback)
}

func TestCreateOrderUnknownPlan(t *testing.T) {
	plans := &memPlanSource{plans: map[int64]*models.Plan{}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCheckout(checkoutConfig("http://127.0.0.1:0"), plans, &capturingPaymentCreator{}, log)

	_, err := c.CreateOrder(context.Background(), 7, 99)
	assert.ErrorIs(t, err, ErrPlanUnavailable)
}

func TestCreateOrderInactivePlan(t *testing.T) {
	inactive := proPlan()
	inactive.IsActive = false
	plans := &memPlanSource{plans: map[int64]*models.Plan{2: inactive}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCheckout(checkoutConfig("http://127.0.0.1:0"), plans, &capturingPaymentCreator{}, log)

	_, err := c.CreateOrder(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrPlanUnavailable)
}
