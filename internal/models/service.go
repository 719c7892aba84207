package models

// Service is a catalog entry clients can order.
// BasePrice is stored in minor units (tiyin).
type Service struct {
	BaseModel
	Name        string `json:"name"`
	Description string `json:"description"`
	BasePrice   int64  `json:"base_price"`
}
