package services

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
)

const paymeTestKey = "payme-test-key"

func newPaymeFixture(t *testing.T) (*PaymeService, *fakeStore, *recordingDispatcher) {
	t.Helper()
	store := newFakeStore()
	dispatcher := &recordingDispatcher{}
	engine := recon.NewEngine(store)
	payme := NewPaymeService(engine, dispatcher, PaymeConfig{
		MerchantID:  "merchant-1",
		MerchantKey: paymeTestKey,
		CheckoutURL: "https://checkout.payme.uz",
		CallbackURL: "https://example.uz/payment/result",
	})
	return payme, store, dispatcher
}

func paymeErrCode(t *testing.T, err error) int {
	t.Helper()
	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	return txErr.Info.Code
}

func TestPaymeCheckPerformTransaction(t *testing.T) {
	ctx := context.Background()
	payme, store, _ := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	err := payme.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  20000,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 1)
	require.NoError(t, err)

	err = payme.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  19999,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 2)
	assert.Equal(t, PaymeErrorInvalidAmount.Code, paymeErrCode(t, err))

	err = payme.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  20000,
		Account: PaymeAccount{OrderID: uuid.New().String()},
	}, 3)
	assert.Equal(t, PaymeErrorTransactionNotFound.Code, paymeErrCode(t, err))

	err = payme.CheckPerformTransaction(ctx, CheckPerformParams{
		Amount:  20000,
		Account: PaymeAccount{OrderID: "not-a-uuid"},
	}, 4)
	assert.Equal(t, PaymeErrorTransactionNotFound.Code, paymeErrCode(t, err))
}

func TestPaymeCreateTransactionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	payme, store, _ := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	params := CreateTransactionParams{
		ID:      "payme-abc",
		Time:    1_700_000_000_000,
		Amount:  20000,
		Account: PaymeAccount{OrderID: orderID.String()},
	}

	first, err := payme.CreateTransaction(ctx, params, 1)
	require.NoError(t, err)
	assert.NotZero(t, first.CreateTime)
	assert.Equal(t, orderID.String(), first.Transaction)
	assert.Equal(t, models.StatePending, first.State)

	replay, err := payme.CreateTransaction(ctx, params, 2)
	require.NoError(t, err)
	assert.Equal(t, first.CreateTime, replay.CreateTime)

	params.ID = "payme-other"
	_, err = payme.CreateTransaction(ctx, params, 3)
	assert.Equal(t, PaymeErrorTooManyRequests.Code, paymeErrCode(t, err))
}

func TestPaymeCreateTransactionWrongAmount(t *testing.T) {
	ctx := context.Background()
	payme, store, _ := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
		ID:      "payme-abc",
		Amount:  100,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 1)
	assert.Equal(t, PaymeErrorInvalidAmount.Code, paymeErrCode(t, err))
}

func TestPaymePerformTransaction(t *testing.T) {
	ctx := context.Background()
	payme, store, dispatcher := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
		ID:      "payme-abc",
		Amount:  20000,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 1)
	require.NoError(t, err)

	first, err := payme.PerformTransaction(ctx, PerformTransactionParams{ID: "payme-abc"}, 2)
	require.NoError(t, err)
	assert.NotZero(t, first.PerformTime)
	assert.Equal(t, models.StatePaid, first.State)

	order, err := store.OrderByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, order.Status)
	require.Equal(t, []recon.IntentKind{recon.IntentOrderPaid}, dispatcher.kinds())

	// Replay returns the stored perform_time and dispatches nothing new.
	replay, err := payme.PerformTransaction(ctx, PerformTransactionParams{ID: "payme-abc"}, 3)
	require.NoError(t, err)
	assert.Equal(t, first.PerformTime, replay.PerformTime)
	assert.Len(t, dispatcher.kinds(), 1)

	_, err = payme.PerformTransaction(ctx, PerformTransactionParams{ID: "payme-unknown"}, 4)
	assert.Equal(t, PaymeErrorTransactionNotFound.Code, paymeErrCode(t, err))
}

func TestPaymeCancelTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("before perform", func(t *testing.T) {
		payme, store, dispatcher := newPaymeFixture(t)
		orderID := store.seedPayable(20000, models.PaymentTypePayme)

		_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
			ID:      "payme-abc",
			Amount:  20000,
			Account: PaymeAccount{OrderID: orderID.String()},
		}, 1)
		require.NoError(t, err)

		result, err := payme.CancelTransaction(ctx, CancelTransactionParams{ID: "payme-abc", Reason: 3}, 2)
		require.NoError(t, err)
		assert.Equal(t, models.StatePendingCanceled, result.State)
		assert.NotZero(t, result.CancelTime)
		require.NotNil(t, result.Reason)
		assert.Equal(t, 3, *result.Reason)

		order, err := store.OrderByID(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, models.OrderCanceled, order.Status)
		require.Equal(t, []recon.IntentKind{recon.IntentOrderCanceled}, dispatcher.kinds())

		// Replay keeps the original cancel_time.
		replay, err := payme.CancelTransaction(ctx, CancelTransactionParams{ID: "payme-abc", Reason: 3}, 3)
		require.NoError(t, err)
		assert.Equal(t, result.CancelTime, replay.CancelTime)
		assert.Len(t, dispatcher.kinds(), 1)
	})

	t.Run("after perform", func(t *testing.T) {
		payme, store, _ := newPaymeFixture(t)
		orderID := store.seedPayable(20000, models.PaymentTypePayme)

		_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
			ID:      "payme-abc",
			Amount:  20000,
			Account: PaymeAccount{OrderID: orderID.String()},
		}, 1)
		require.NoError(t, err)
		_, err = payme.PerformTransaction(ctx, PerformTransactionParams{ID: "payme-abc"}, 2)
		require.NoError(t, err)

		result, err := payme.CancelTransaction(ctx, CancelTransactionParams{ID: "payme-abc", Reason: 5}, 3)
		require.NoError(t, err)
		assert.Equal(t, models.StatePaidCanceled, result.State)
	})
}

func TestPaymeCheckTransaction(t *testing.T) {
	ctx := context.Background()
	payme, store, _ := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
		ID:      "payme-abc",
		Amount:  20000,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 1)
	require.NoError(t, err)

	result, err := payme.CheckTransaction(ctx, CheckTransactionParams{ID: "payme-abc"}, 2)
	require.NoError(t, err)
	assert.NotZero(t, result.CreateTime)
	assert.Zero(t, result.PerformTime)
	assert.Zero(t, result.CancelTime)
	assert.Equal(t, models.StatePending, result.State)
	assert.Equal(t, orderID.String(), result.Transaction)
	assert.Nil(t, result.Reason)

	_, err = payme.CheckTransaction(ctx, CheckTransactionParams{ID: "payme-unknown"}, 3)
	assert.Equal(t, PaymeErrorTransactionNotFound.Code, paymeErrCode(t, err))
}

func TestPaymeGetStatement(t *testing.T) {
	ctx := context.Background()
	payme, store, _ := newPaymeFixture(t)
	orderID := store.seedPayable(20000, models.PaymentTypePayme)

	_, err := payme.CreateTransaction(ctx, CreateTransactionParams{
		ID:      "payme-abc",
		Amount:  20000,
		Account: PaymeAccount{OrderID: orderID.String()},
	}, 1)
	require.NoError(t, err)

	txn, err := store.TransactionByOrderID(ctx, orderID)
	require.NoError(t, err)

	statements := payme.GetStatement(ctx, StatementParams{From: txn.CreatedAtMS - 1, To: txn.CreatedAtMS + 1})
	require.Len(t, statements, 1)
	assert.Equal(t, "payme-abc", statements[0].ID)
	assert.Equal(t, orderID.String(), statements[0].Account.OrderID)
	assert.NotNil(t, statements[0].Receivers)

	statements = payme.GetStatement(ctx, StatementParams{From: txn.CreatedAtMS + 1, To: txn.CreatedAtMS + 2})
	assert.Empty(t, statements)
}

func TestPaymeVerifyAuthorization(t *testing.T) {
	payme, _, _ := newPaymeFixture(t)

	good := "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:"+paymeTestKey))
	assert.True(t, payme.VerifyAuthorization(good))

	// Token without the scheme prefix is accepted too.
	bare := base64.StdEncoding.EncodeToString([]byte("Paycom:" + paymeTestKey))
	assert.True(t, payme.VerifyAuthorization(bare))

	wrongKey := "Basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:wrong"))
	assert.False(t, payme.VerifyAuthorization(wrongKey))

	assert.False(t, payme.VerifyAuthorization(""))
	assert.False(t, payme.VerifyAuthorization("   "))
	assert.False(t, payme.VerifyAuthorization("Basic not-base64!!!"))
	assert.False(t, payme.VerifyAuthorization("Basic "+base64.StdEncoding.EncodeToString([]byte("no-colon"))))
}

func TestPaymePayLink(t *testing.T) {
	payme, _, _ := newPaymeFixture(t)
	orderID := uuid.New()

	link := payme.PayLink(orderID, 20000, "")
	require.Contains(t, link, "https://checkout.payme.uz/")

	encoded := link[len("https://checkout.payme.uz/"):]
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	params := string(decoded)
	assert.Contains(t, params, "m=merchant-1")
	assert.Contains(t, params, "ac.order_id="+orderID.String())
	assert.Contains(t, params, "a=20000")
	assert.Contains(t, params, "c=https://example.uz/payment/result")
}
