package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
)

const clickTestSecret = "test-secret-key"

func newClickFixture(t *testing.T) (*ClickService, *fakeStore, *recordingDispatcher) {
	t.Helper()
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	engine := recon.NewEngine(store)
	click := NewClickService(engine, dispatcher, ClickConfig{
		MerchantID:     "12345",
		MerchantUserID: "67890",
		ServiceID:      "555",
		SecretKey:      clickTestSecret,
	})
	return click, store, dispatcher
}

// signClick computes the digest the same way Click does on its side.
func signClick(req *ClickRequest) {
	var b strings.Builder
	b.WriteString(req.ClickTransID)
	b.WriteString(req.ServiceID)
	b.WriteString(clickTestSecret)
	b.WriteString(req.MerchantTransID)
	if req.Action == ClickActionComplete && req.MerchantPrepareID != "" {
		b.WriteString(req.MerchantPrepareID)
	}
	b.WriteString(req.Amount)
	b.WriteString(req.Action)
	b.WriteString(req.SignTime)
	sum := md5.Sum([]byte(b.String()))
	req.SignString = hex.EncodeToString(sum[:])
}

func prepareRequest(orderID uuid.UUID, amount string) ClickRequest {
	req := ClickRequest{
		ClickTransID:    "click-777",
		ServiceID:       "555",
		MerchantTransID: orderID.String(),
		Amount:          amount,
		Action:          ClickActionPrepare,
		SignTime:        "2026-08-31 12:00:00",
	}
	signClick(&req)
	return req
}

func completeRequest(orderID uuid.UUID, amount, gatewayError string) ClickRequest {
	req := ClickRequest{
		ClickTransID:      "click-777",
		ServiceID:         "555",
		ClickPaydocID:     "paydoc-42",
		MerchantTransID:   orderID.String(),
		MerchantPrepareID: orderID.String(),
		Amount:            amount,
		Action:            ClickActionComplete,
		Error:             gatewayError,
		SignTime:          "2026-08-31 12:01:00",
	}
	signClick(&req)
	return req
}

func TestClickWebhookRejectsBadSignature(t *testing.T) {
	click, store, _ := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	req := prepareRequest(orderID, "15000")
	req.SignString = req.SignString[:len(req.SignString)-1] + "x"

	resp := click.HandleWebhook(context.Background(), req)
	assert.Equal(t, ClickErrSignature, resp.Error)

	// Tampering with a signed field after signing must also fail.
	req = prepareRequest(orderID, "15000")
	req.Amount = "15001"
	resp = click.HandleWebhook(context.Background(), req)
	assert.Equal(t, ClickErrSignature, resp.Error)
}

func TestClickWebhookPrepareComplete(t *testing.T) {
	ctx := context.Background()
	click, store, dispatcher := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	resp := click.HandleWebhook(ctx, prepareRequest(orderID, "15000"))
	require.Equal(t, ClickSuccess, resp.Error)
	assert.Equal(t, "click-777", resp.ClickTransID)
	assert.Equal(t, orderID.String(), resp.MerchantTransID)
	assert.Equal(t, orderID.String(), resp.MerchantPrepareID)

	txn, err := store.TransactionByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionProcessing, txn.Status)
	assert.Equal(t, "click-777", txn.PrepareID)

	resp = click.HandleWebhook(ctx, completeRequest(orderID, "15000", "0"))
	require.Equal(t, ClickSuccess, resp.Error)
	assert.Equal(t, orderID.String(), resp.MerchantConfirmID)

	txn, err = store.TransactionByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionConfirmed, txn.Status)
	assert.Equal(t, "paydoc-42", txn.PaymentID)
	assert.Equal(t, models.StatePaid, txn.State)

	order, err := store.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)

	require.Equal(t, []recon.IntentKind{recon.IntentOrderPaid}, dispatcher.kinds())

	// Redelivery of the same complete succeeds again without a second intent.
	resp = click.HandleWebhook(ctx, completeRequest(orderID, "15000", "0"))
	assert.Equal(t, ClickSuccess, resp.Error)
	assert.Len(t, dispatcher.kinds(), 1)
}

func TestClickWebhookAmountMismatch(t *testing.T) {
	click, store, _ := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	resp := click.HandleWebhook(context.Background(), prepareRequest(orderID, "14999"))
	assert.Equal(t, ClickErrAmount, resp.Error)
}

func TestClickWebhookUnknownAction(t *testing.T) {
	click, store, _ := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	req := prepareRequest(orderID, "15000")
	req.Action = "2"
	signClick(&req)

	resp := click.HandleWebhook(context.Background(), req)
	assert.Equal(t, ClickErrAction, resp.Error)
}

func TestClickWebhookUnknownOrder(t *testing.T) {
	click, _, _ := newClickFixture(t)

	resp := click.HandleWebhook(context.Background(), prepareRequest(uuid.New(), "15000"))
	assert.Equal(t, ClickErrOrder, resp.Error)

	// A merchant_trans_id that is not a uuid at all.
	req := ClickRequest{
		ClickTransID:    "click-777",
		ServiceID:       "555",
		MerchantTransID: "not-a-uuid",
		Amount:          "15000",
		Action:          ClickActionPrepare,
		SignTime:        "2026-08-31 12:00:00",
	}
	signClick(&req)
	resp = click.HandleWebhook(context.Background(), req)
	assert.Equal(t, ClickErrOrder, resp.Error)
}

func TestClickWebhookPrepareIDMismatchOnComplete(t *testing.T) {
	ctx := context.Background()
	click, store, _ := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	resp := click.HandleWebhook(ctx, prepareRequest(orderID, "15000"))
	require.Equal(t, ClickSuccess, resp.Error)

	req := completeRequest(orderID, "15000", "0")
	req.MerchantPrepareID = uuid.New().String()
	signClick(&req)

	resp = click.HandleWebhook(ctx, req)
	assert.Equal(t, ClickErrTransaction, resp.Error)
}

func TestClickWebhookNegativeErrorCancels(t *testing.T) {
	ctx := context.Background()
	click, store, dispatcher := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	resp := click.HandleWebhook(ctx, prepareRequest(orderID, "15000"))
	require.Equal(t, ClickSuccess, resp.Error)

	resp = click.HandleWebhook(ctx, completeRequest(orderID, "15000", "-5017"))
	assert.Equal(t, ClickErrCanceled, resp.Error)

	txn, err := store.TransactionByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCanceled, txn.Status)
	assert.Equal(t, models.StatePendingCanceled, txn.State)

	// The client still hears about the cancellation.
	require.Equal(t, []recon.IntentKind{recon.IntentOrderCanceled}, dispatcher.kinds())

	// Paying the canceled transaction afterwards must not work, and the
	// replayed cancel dispatches nothing new.
	resp = click.HandleWebhook(ctx, completeRequest(orderID, "15000", "0"))
	assert.Equal(t, ClickErrCanceled, resp.Error)
	assert.Len(t, dispatcher.kinds(), 1)
}

func TestClickWebhookNegativeErrorOnPrepareCancels(t *testing.T) {
	ctx := context.Background()
	click, store, dispatcher := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	req := prepareRequest(orderID, "15000")
	req.Error = "-5017"
	signClick(&req)

	resp := click.HandleWebhook(ctx, req)
	assert.Equal(t, ClickErrCanceled, resp.Error)

	txn, err := store.TransactionByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCanceled, txn.Status)
	assert.Equal(t, models.StatePendingCanceled, txn.State)

	order, err := store.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCanceled, order.Status)

	require.Equal(t, []recon.IntentKind{recon.IntentOrderCanceled}, dispatcher.kinds())
}

func TestClickWebhookAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	click, store, _ := newClickFixture(t)
	orderID := store.seedPayable(15000, models.PaymentTypeClick)

	require.Equal(t, ClickSuccess, click.HandleWebhook(ctx, prepareRequest(orderID, "15000")).Error)
	require.Equal(t, ClickSuccess, click.HandleWebhook(ctx, completeRequest(orderID, "15000", "0")).Error)

	// Prepare against a confirmed transaction.
	resp := click.HandleWebhook(ctx, prepareRequest(orderID, "15000"))
	assert.Equal(t, ClickErrAlreadyPaid, resp.Error)

	// Complete with a different payment document.
	req := completeRequest(orderID, "15000", "0")
	req.ClickPaydocID = "paydoc-other"
	signClick(&req)
	resp = click.HandleWebhook(ctx, req)
	assert.Equal(t, ClickErrAlreadyPaid, resp.Error)
}

func TestClickPayLink(t *testing.T) {
	click, _, _ := newClickFixture(t)
	orderID := uuid.New()

	link := click.PayLink(orderID, 15000, "https://example.uz/return")
	assert.Contains(t, link, "https://my.click.uz/services/pay?")
	assert.Contains(t, link, "service_id=555")
	assert.Contains(t, link, "merchant_id=12345")
	assert.Contains(t, link, "amount=15000")
	assert.Contains(t, link, "transaction_param="+orderID.String())
	assert.Contains(t, link, "return_url=https://example.uz/return")
}

func TestParseClickAmount(t *testing.T) {
	cases := []struct {
		raw   string
		want  int64
		valid bool
	}{
		{"15000", 15000, true},
		{"15000.00", 15000, true},
		{"15000.000", 15000, true},
		{" 15000 ", 15000, true},
		{"0", 0, true},
		{"15000.50", 0, false},
		{"15000.", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := parseClickAmount(tc.raw)
		if tc.valid {
			require.NoError(t, err, "amount %q", tc.raw)
			assert.Equal(t, tc.want, got, "amount %q", tc.raw)
		} else {
			assert.Error(t, err, "amount %q", tc.raw)
		}
	}
}
