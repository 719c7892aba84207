package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/recon"
)

// Payme merchant API method names. The set is closed; anything else is
// answered with MethodNotFound.
const (
	PaymeMethodCheckPerform = "CheckPerformTransaction"
	PaymeMethodCreate       = "CreateTransaction"
	PaymeMethodPerform      = "PerformTransaction"
	PaymeMethodCancel       = "CancelTransaction"
	PaymeMethodCheck        = "CheckTransaction"
	PaymeMethodStatement    = "GetStatement"
)

// PaymeErrorInfo describes a Payme-compatible error.
type PaymeErrorInfo struct {
	Name    string
	Code    int
	Message map[string]string
}

var (
	PaymeErrorInvalidAmount = PaymeErrorInfo{
		Name: "InvalidAmount",
		Code: -31001,
		Message: map[string]string{
			"uz": "Noto'g'ri summa",
			"ru": "Недопустимая сумма",
			"en": "Invalid amount",
		},
	}
	PaymeErrorCantDoOperation = PaymeErrorInfo{
		Name: "CantDoOperation",
		Code: -31008,
		Message: map[string]string{
			"uz": "Biz operatsiyani bajara olmaymiz",
			"ru": "Мы не можем сделать операцию",
			"en": "We can't do operation",
		},
	}
	PaymeErrorTransactionNotFound = PaymeErrorInfo{
		Name: "TransactionNotFound",
		Code: -31050,
		Message: map[string]string{
			"uz": "Tranzaktsiya topilmadi",
			"ru": "Транзакция не найдена",
			"en": "Transaction not found",
		},
	}
	PaymeErrorAlreadyDone = PaymeErrorInfo{
		Name: "AlreadyDone",
		Code: -31060,
		Message: map[string]string{
			"uz": "Mahsulot uchun to'lov qilingan",
			"ru": "Оплачено за товар",
			"en": "Paid for the product",
		},
	}
	PaymeErrorTooManyRequests = PaymeErrorInfo{
		Name: "TooManyRequests",
		Code: -31099,
		Message: map[string]string{
			"uz": "Buyurtma uchun boshqa tranzaktsiya mavjud",
			"ru": "Для заказа уже существует другая транзакция",
			"en": "Another transaction exists for this order",
		},
	}
	PaymeErrorInvalidAuthorization = PaymeErrorInfo{
		Name: "InvalidAuthorization",
		Code: -32504,
		Message: map[string]string{
			"uz": "Avtorizatsiya yaroqsiz",
			"ru": "Авторизация недействительна",
			"en": "Authorization invalid",
		},
	}
	PaymeErrorMethodNotFound = PaymeErrorInfo{
		Name: "MethodNotFound",
		Code: -32601,
		Message: map[string]string{
			"uz": "Metod topilmadi",
			"ru": "Метод не найден",
			"en": "Method not found",
		},
	}
)

// TransactionError is a structured Payme transaction error, rendered into
// the JSON-RPC error envelope by the webhook handler.
type TransactionError struct {
	Info PaymeErrorInfo
	ID   any
	Data any
}

func (e *TransactionError) Error() string {
	return e.Info.Name
}

// PaymeConfig carries the merchant credentials issued by Payme.
type PaymeConfig struct {
	MerchantID  string
	MerchantKey string
	CheckoutURL string
	CallbackURL string
}

// PaymeService is the Payme gateway adapter. It translates merchant API
// params into engine operations and engine outcomes into Payme result and
// error envelopes.
type PaymeService struct {
	engine     *recon.Engine
	dispatcher recon.Dispatcher
	cfg        PaymeConfig
}

func NewPaymeService(engine *recon.Engine, dispatcher recon.Dispatcher, cfg PaymeConfig) *PaymeService {
	return &PaymeService{engine: engine, dispatcher: dispatcher, cfg: cfg}
}

// PaymeAccount is the account block of merchant API params; order_id is the
// configured account field.
type PaymeAccount struct {
	OrderID string `json:"order_id"`
}

type CheckPerformParams struct {
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type CreateTransactionParams struct {
	ID      string       `json:"id"`
	Time    int64        `json:"time"`
	Amount  int64        `json:"amount"`
	Account PaymeAccount `json:"account"`
}

type PerformTransactionParams struct {
	ID string `json:"id"`
}

type CancelTransactionParams struct {
	ID     string `json:"id"`
	Reason int    `json:"reason"`
}

type CheckTransactionParams struct {
	ID string `json:"id"`
}

type StatementParams struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type CreateTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type PerformTransactionResult struct {
	PerformTime int64  `json:"perform_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
}

type CancelTransactionResult struct {
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type CheckTransactionResult struct {
	CreateTime  int64  `json:"create_time"`
	PerformTime int64  `json:"perform_time"`
	CancelTime  int64  `json:"cancel_time"`
	Transaction string `json:"transaction"`
	State       int    `json:"state"`
	Reason      *int   `json:"reason"`
}

type StatementTransaction struct {
	ID          string       `json:"id"`
	Time        int64        `json:"time"`
	Amount      int64        `json:"amount"`
	Account     PaymeAccount `json:"account"`
	CreateTime  int64        `json:"create_time"`
	PerformTime int64        `json:"perform_time"`
	CancelTime  int64        `json:"cancel_time"`
	Transaction string       `json:"transaction"`
	State       int          `json:"state"`
	Reason      *int         `json:"reason"`
	Receivers   []any        `json:"receivers"`
}

// CheckPerformTransaction validates that the order is payable for the given
// amount. No state changes.
func (s *PaymeService) CheckPerformTransaction(ctx context.Context, params CheckPerformParams, id any) error {
	orderID, err := uuid.Parse(params.Account.OrderID)
	if err != nil {
		return &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
	}
	if err := s.engine.CheckPerform(ctx, orderID, params.Amount); err != nil {
		return s.paymeError(err, id)
	}
	return nil
}

// CreateTransaction binds the Payme transaction id to the order's payment
// attempt. Idempotent for the same id; a second id for the same order is
// rejected with TooManyRequests.
func (s *PaymeService) CreateTransaction(ctx context.Context, params CreateTransactionParams, id any) (*CreateTransactionResult, error) {
	orderID, err := uuid.Parse(params.Account.OrderID)
	if err != nil {
		return nil, &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
	}

	result, err := s.engine.Create(ctx, orderID, params.ID, params.Amount)
	if err != nil {
		return nil, s.paymeError(err, id)
	}

	return &CreateTransactionResult{
		CreateTime:  result.Txn.CreatedAtMS,
		Transaction: result.Txn.OrderID.String(),
		State:       result.Txn.State,
	}, nil
}

// PerformTransaction confirms the payment. perform_time is stable across
// replays.
func (s *PaymeService) PerformTransaction(ctx context.Context, params PerformTransactionParams, id any) (*PerformTransactionResult, error) {
	result, err := s.engine.Perform(ctx, params.ID)
	if err != nil {
		return nil, s.paymeError(err, id)
	}

	if s.dispatcher != nil && len(result.Intents) > 0 {
		s.dispatcher.Dispatch(ctx, result.Intents...)
	}

	return &PerformTransactionResult{
		PerformTime: result.Txn.PerformTime,
		Transaction: result.Txn.OrderID.String(),
		State:       result.Txn.State,
	}, nil
}

// CancelTransaction cancels the payment from any state.
func (s *PaymeService) CancelTransaction(ctx context.Context, params CancelTransactionParams, id any) (*CancelTransactionResult, error) {
	result, err := s.engine.Cancel(ctx, params.ID, params.Reason)
	if err != nil {
		return nil, s.paymeError(err, id)
	}

	if s.dispatcher != nil && len(result.Intents) > 0 {
		s.dispatcher.Dispatch(ctx, result.Intents...)
	}

	return &CancelTransactionResult{
		CancelTime:  result.Txn.CancelTime,
		Transaction: result.Txn.OrderID.String(),
		State:       result.Txn.State,
		Reason:      result.Txn.Reason,
	}, nil
}

// CheckTransaction reports transaction state by Payme transaction id.
func (s *PaymeService) CheckTransaction(ctx context.Context, params CheckTransactionParams, id any) (*CheckTransactionResult, error) {
	txn, err := s.engine.Check(ctx, params.ID)
	if err != nil {
		return nil, s.paymeError(err, id)
	}

	return &CheckTransactionResult{
		CreateTime:  txn.CreatedAtMS,
		PerformTime: txn.PerformTime,
		CancelTime:  txn.CancelTime,
		Transaction: txn.OrderID.String(),
		State:       txn.State,
		Reason:      txn.Reason,
	}, nil
}

// GetStatement returns transactions created in the given time range.
func (s *PaymeService) GetStatement(ctx context.Context, params StatementParams) []StatementTransaction {
	txns := s.engine.Statement(ctx, params.From, params.To)

	statements := make([]StatementTransaction, 0, len(txns))
	for _, t := range txns {
		statements = append(statements, StatementTransaction{
			ID:          t.PaymeID,
			Time:        t.CreatedAtMS,
			Amount:      t.Amount,
			Account:     PaymeAccount{OrderID: t.OrderID.String()},
			CreateTime:  t.CreatedAtMS,
			PerformTime: t.PerformTime,
			CancelTime:  t.CancelTime,
			Transaction: t.OrderID.String(),
			State:       t.State,
			Reason:      t.Reason,
			Receivers:   []any{},
		})
	}
	return statements
}

// PayLink builds the hosted checkout URL: base64 of
// m=<merchant>;ac.order_id=<order>;a=<amount>;c=<return url>.
func (s *PaymeService) PayLink(orderID uuid.UUID, amount int64, returnURL string) string {
	if returnURL == "" {
		returnURL = s.cfg.CallbackURL
	}
	params := fmt.Sprintf("m=%s;ac.order_id=%s;a=%d;c=%s", s.cfg.MerchantID, orderID, amount, returnURL)
	encoded := base64.StdEncoding.EncodeToString([]byte(params))
	return fmt.Sprintf("%s/%s", s.cfg.CheckoutURL, encoded)
}

// VerifyAuthorization checks the Basic-style Authorization header: base64
// of login:key, where the key segment must equal the merchant key.
func (s *PaymeService) VerifyAuthorization(header string) bool {
	if header == "" || s.cfg.MerchantKey == "" {
		return false
	}

	fields := strings.Fields(header)
	if len(fields) == 0 {
		return false
	}
	token := fields[len(fields)-1]

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	idx := strings.LastIndexByte(string(decoded), ':')
	if idx < 0 {
		return false
	}
	return string(decoded[idx+1:]) == s.cfg.MerchantKey
}

func (s *PaymeService) paymeError(err error, id any) error {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		return txErr
	}

	switch {
	case errors.Is(err, recon.ErrOrderNotFound), errors.Is(err, recon.ErrTransactionNotFound):
		return &TransactionError{Info: PaymeErrorTransactionNotFound, ID: id}
	case errors.Is(err, recon.ErrAmountMismatch):
		return &TransactionError{Info: PaymeErrorInvalidAmount, ID: id}
	case errors.Is(err, recon.ErrAlreadyPaid):
		return &TransactionError{Info: PaymeErrorAlreadyDone, ID: id}
	case errors.Is(err, recon.ErrTransactionCanceled):
		return &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	case errors.Is(err, recon.ErrTooManyRequests):
		return &TransactionError{Info: PaymeErrorTooManyRequests, ID: id}
	case errors.Is(err, recon.ErrMethodNotFound):
		return &TransactionError{Info: PaymeErrorMethodNotFound, ID: id}
	default:
		log.Printf("[Payme] unexpected failure: %v", err)
		return &TransactionError{Info: PaymeErrorCantDoOperation, ID: id}
	}
}
