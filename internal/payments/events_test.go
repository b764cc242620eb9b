package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventPayment(t *testing.T) {
	body := []byte(`{
		"event": "payment.captured",
		"payload": {
			"id": "pay_9",
			"order_id": "order_9",
			"method": "card",
			"amount": 2499
		}
	}`)

	event, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, event.Kind)
	require.NotNil(t, event.Payment)
	assert.Nil(t, event.Refund)
	assert.Equal(t, "pay_9", event.Payment.PaymentID)
	assert.Equal(t, "order_9", event.Payment.OrderID)
	assert.Equal(t, 2499, event.Payment.Amount)
}

func TestParseEventFailedCarriesErrorDescription(t *testing.T) {
	body := []byte(`{"event":"payment.failed","payload":{"id":"pay_1","order_id":"order_1","error_description":"card declined"}}`)
	event, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, event.Kind)
	assert.Equal(t, "card declined", event.Payment.ErrorDescription)
}

func TestParseEventRefund(t *testing.T) {
	body := []byte(`{"event":"refund.processed","payload":{"id":"rfnd_1","payment_id":"pay_1","order_id":"order_1"}}`)
	event, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventRefundProcessed, event.Kind)
	require.NotNil(t, event.Refund)
	assert.Nil(t, event.Payment)
	assert.Equal(t, "rfnd_1", event.Refund.RefundID)
}

func TestParseEventUnknownKind(t *testing.T) {
	event, err := ParseEvent([]byte(`{"event":"invoice.generated","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, event.Kind)
	assert.Equal(t, "invoice.generated", event.RawKind)
	assert.Nil(t, event.Payment)
	assert.Nil(t, event.Refund)
}

func TestParseEventMalformedBody(t *testing.T) {
	_, err := ParseEvent([]byte(`{"event":`))
	assert.Error(t, err)
}
