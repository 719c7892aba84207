package handlers

import (
	"encoding/json"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/example/ustabor/internal/services"
)

// PaymeHandler receives Payme merchant API calls.
type PaymeHandler struct {
	payme *services.PaymeService
}

func NewPaymeHandler(payme *services.PaymeService) *PaymeHandler {
	return &PaymeHandler{payme: payme}
}

type paymeRPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     any             `json:"id"`
}

// Pay dispatches Payme JSON-RPC style calls. Every outcome, including
// unknown methods and malformed params, is an HTTP 200 body with either a
// result or a Payme error envelope.
func (h *PaymeHandler) Pay(c *fiber.Ctx) error {
	var req paymeRPCRequest
	if err := c.BodyParser(&req); err != nil {
		log.Printf("[Payme] failed to parse request body: %v", err)
		return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorMethodNotFound})
	}

	ctx := c.UserContext()

	switch req.Method {
	case services.PaymeMethodCheckPerform:
		var params services.CheckPerformParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorInvalidAmount, ID: req.ID})
		}
		if err := h.payme.CheckPerformTransaction(ctx, params, req.ID); err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": fiber.Map{"allow": true}, "id": req.ID})

	case services.PaymeMethodCreate:
		var params services.CreateTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorCantDoOperation, ID: req.ID})
		}
		result, err := h.payme.CreateTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})

	case services.PaymeMethodPerform:
		var params services.PerformTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorCantDoOperation, ID: req.ID})
		}
		result, err := h.payme.PerformTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})

	case services.PaymeMethodCancel:
		var params services.CancelTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorCantDoOperation, ID: req.ID})
		}
		result, err := h.payme.CancelTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})

	case services.PaymeMethodCheck:
		var params services.CheckTransactionParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorTransactionNotFound, ID: req.ID})
		}
		result, err := h.payme.CheckTransaction(ctx, params, req.ID)
		if err != nil {
			return writePaymeError(c, err)
		}
		return c.JSON(fiber.Map{"result": result, "id": req.ID})

	case services.PaymeMethodStatement:
		var params services.StatementParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return c.JSON(fiber.Map{"result": fiber.Map{"transactions": []any{}}, "id": req.ID})
		}
		return c.JSON(fiber.Map{
			"result": fiber.Map{"transactions": h.payme.GetStatement(ctx, params)},
			"id":     req.ID,
		})

	default:
		log.Printf("[Payme] unknown method: %q", req.Method)
		return writePaymeError(c, &services.TransactionError{Info: services.PaymeErrorMethodNotFound, ID: req.ID})
	}
}

func writePaymeError(c *fiber.Ctx, err error) error {
	if txErr, ok := err.(*services.TransactionError); ok {
		info := txErr.Info
		return c.JSON(fiber.Map{
			"error": fiber.Map{
				"code": info.Code,
				"message": fiber.Map{
					"uz": info.Message["uz"],
					"ru": info.Message["ru"],
					"en": info.Message["en"],
				},
				"data": txErr.Data,
			},
			"id": txErr.ID,
		})
	}
	return err
}
