package services

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/ustabor/internal/recon"
)

// Click webhook actions.
const (
	ClickActionPrepare  = "0"
	ClickActionComplete = "1"
)

// Click webhook response codes.
const (
	ClickSuccess        = 0
	ClickErrSignature   = -1
	ClickErrAmount      = -2
	ClickErrAction      = -3
	ClickErrAlreadyPaid = -4
	ClickErrOrder       = -5
	ClickErrTransaction = -6
	ClickErrCanceled    = -9
)

// ClickConfig carries the merchant credentials issued by Click.
type ClickConfig struct {
	MerchantID     string
	MerchantUserID string
	ServiceID      string
	SecretKey      string
}

// ClickService is the Click gateway adapter: it verifies webhook signatures,
// normalizes prepare/complete callbacks into engine operations and renders
// the Click response envelope. It also builds pay links and fetches OFD
// receipt QR codes.
type ClickService struct {
	engine     *recon.Engine
	dispatcher recon.Dispatcher
	cfg        ClickConfig
	client     *http.Client
}

func NewClickService(engine *recon.Engine, dispatcher recon.Dispatcher, cfg ClickConfig) *ClickService {
	return &ClickService{
		engine:     engine,
		dispatcher: dispatcher,
		cfg:        cfg,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// ClickRequest mirrors the form fields Click posts to the webhook.
type ClickRequest struct {
	ClickTransID      string `form:"click_trans_id" json:"click_trans_id"`
	ServiceID         string `form:"service_id" json:"service_id"`
	ClickPaydocID     string `form:"click_paydoc_id" json:"click_paydoc_id"`
	MerchantTransID   string `form:"merchant_trans_id" json:"merchant_trans_id"`
	MerchantPrepareID string `form:"merchant_prepare_id" json:"merchant_prepare_id"`
	Amount            string `form:"amount" json:"amount"`
	Action            string `form:"action" json:"action"`
	Error             string `form:"error" json:"error"`
	ErrorNote         string `form:"error_note" json:"error_note"`
	SignTime          string `form:"sign_time" json:"sign_time"`
	SignString        string `form:"sign_string" json:"sign_string"`
}

// ClickResponse is the webhook reply. Always delivered with HTTP 200; the
// outcome lives in the error code.
type ClickResponse struct {
	Error             int    `json:"error"`
	ErrorNote         string `json:"error_note"`
	ClickTransID      string `json:"click_trans_id,omitempty"`
	MerchantTransID   string `json:"merchant_trans_id,omitempty"`
	MerchantPrepareID string `json:"merchant_prepare_id,omitempty"`
	MerchantConfirmID string `json:"merchant_confirm_id,omitempty"`
}

// VerifySignature recomputes the MD5 digest over the concatenation Click
// signs and compares it, case sensitively, to sign_string. The prepare id
// participates only on the complete action.
func (s *ClickService) VerifySignature(req ClickRequest) bool {
	var b strings.Builder
	b.WriteString(req.ClickTransID)
	b.WriteString(req.ServiceID)
	b.WriteString(s.cfg.SecretKey)
	b.WriteString(req.MerchantTransID)
	if req.Action == ClickActionComplete && req.MerchantPrepareID != "" {
		b.WriteString(req.MerchantPrepareID)
	}
	b.WriteString(req.Amount)
	b.WriteString(req.Action)
	b.WriteString(req.SignTime)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]) == req.SignString
}

// HandleWebhook processes one Click callback and always produces a response
// body; every failure is a typed code, never a fault.
func (s *ClickService) HandleWebhook(ctx context.Context, req ClickRequest) ClickResponse {
	if !s.VerifySignature(req) {
		return s.respond(req, ClickErrSignature, "SIGN CHECK FAILED!")
	}

	if req.Action != ClickActionPrepare && req.Action != ClickActionComplete {
		return s.respond(req, ClickErrAction, "Action not found")
	}

	orderID, err := uuid.Parse(req.MerchantTransID)
	if err != nil {
		return s.respond(req, ClickErrOrder, "Order not found")
	}

	amount, err := parseClickAmount(req.Amount)
	if err != nil {
		return s.respond(req, ClickErrAmount, "Incorrect parameter amount")
	}

	gatewayError := 0
	if req.Error != "" {
		if parsed, err := strconv.Atoi(req.Error); err == nil {
			gatewayError = parsed
		}
	}

	var result *recon.Result
	switch req.Action {
	case ClickActionPrepare:
		if gatewayError < 0 {
			result, err = s.engine.CancelOrder(ctx, orderID)
			if err == nil {
				err = recon.ErrTransactionCanceled
			}
		} else {
			result, err = s.engine.Prepare(ctx, orderID, req.ClickTransID, amount)
		}
	case ClickActionComplete:
		// Click returns our prepare id as the confirm id; it must match.
		if req.MerchantPrepareID != req.MerchantTransID {
			return s.respond(req, ClickErrTransaction, "Transaction not found")
		}
		result, err = s.engine.Complete(ctx, orderID, s.paymentRef(req), amount, gatewayError)
	}

	// A cancel outcome carries intents alongside its typed error; deliver
	// them before rendering the response.
	if result != nil && s.dispatcher != nil && len(result.Intents) > 0 {
		s.dispatcher.Dispatch(ctx, result.Intents...)
	}

	if err != nil {
		code, note := clickError(err)
		return s.respond(req, code, note)
	}

	return s.respond(req, ClickSuccess, "Success")
}

// PayLink builds the hosted payment page URL for an order.
func (s *ClickService) PayLink(orderID uuid.UUID, amount int64, returnURL string) string {
	url := fmt.Sprintf(
		"https://my.click.uz/services/pay?service_id=%s&merchant_id=%s&amount=%d&transaction_param=%s",
		s.cfg.ServiceID, s.cfg.MerchantID, amount, orderID,
	)
	if returnURL != "" {
		url += "&return_url=" + returnURL
	}
	return url
}

// ReceiptQR fetches the OFD fiscal receipt QR code URL for a confirmed
// payment, identified by the click_paydoc_id recorded on complete.
func (s *ClickService) ReceiptQR(ctx context.Context, paymentID string) (string, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	digest := sha1.Sum([]byte(ts + s.cfg.SecretKey))

	url := fmt.Sprintf("https://api.click.uz/v2/merchant/payment/ofd_data/%s/%s", s.cfg.ServiceID, paymentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Auth", fmt.Sprintf("%s:%s:%s", s.cfg.MerchantUserID, hex.EncodeToString(digest[:]), ts))
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("click ofd_data returned status %d", resp.StatusCode)
	}

	var body struct {
		QRCodeURL string `json:"qrCodeURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.QRCodeURL, nil
}

// paymentRef picks the external payment document id recorded on complete.
func (s *ClickService) paymentRef(req ClickRequest) string {
	if req.ClickPaydocID != "" {
		return req.ClickPaydocID
	}
	return req.ClickTransID
}

func (s *ClickService) respond(req ClickRequest, code int, note string) ClickResponse {
	if code != ClickSuccess {
		log.Printf("[Click] webhook rejected: action=%s order=%s code=%d (%s)",
			req.Action, req.MerchantTransID, code, note)
	}
	resp := ClickResponse{
		Error:           code,
		ErrorNote:       note,
		ClickTransID:    req.ClickTransID,
		MerchantTransID: req.MerchantTransID,
	}
	// Click expects the prepare id echoed back; we use the order id itself.
	if code == ClickSuccess {
		resp.MerchantPrepareID = req.MerchantTransID
		resp.MerchantConfirmID = req.MerchantTransID
	}
	return resp
}

func clickError(err error) (int, string) {
	switch {
	case errors.Is(err, recon.ErrOrderNotFound):
		return ClickErrOrder, "Order not found"
	case errors.Is(err, recon.ErrTransactionNotFound):
		return ClickErrTransaction, "Transaction not found"
	case errors.Is(err, recon.ErrAmountMismatch):
		return ClickErrAmount, "Incorrect parameter amount"
	case errors.Is(err, recon.ErrAlreadyPaid):
		return ClickErrAlreadyPaid, "Already paid"
	case errors.Is(err, recon.ErrTransactionCanceled):
		return ClickErrCanceled, "Transaction cancelled"
	default:
		log.Printf("[Click] unexpected failure: %v", err)
		return ClickErrTransaction, "Transaction not found"
	}
}

// parseClickAmount converts Click's decimal amount string into minor units.
// The value must be integral in minor units: an optional fraction is
// accepted only when it is all zeros.
func parseClickAmount(raw string) (int64, error) {
	whole, frac, found := strings.Cut(strings.TrimSpace(raw), ".")
	if found {
		if frac == "" || strings.Trim(frac, "0") != "" {
			return 0, fmt.Errorf("fractional minor-unit amount %q", raw)
		}
	}
	value, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}
