package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/ustabor/internal/models"
	"github.com/example/ustabor/internal/recon"
	"github.com/example/ustabor/internal/services"
)

// Dispatcher persists notifications and mirrors them to the Telegram admin
// chat. It implements recon.Dispatcher for payment side effects and is also
// called directly by the order handlers when an order changes state.
// Delivery is fire-and-forget: failures are logged and never surfaced.
type Dispatcher struct {
	db       *gorm.DB
	telegram *services.TelegramService
}

func NewDispatcher(db *gorm.DB, telegram *services.TelegramService) *Dispatcher {
	return &Dispatcher{db: db, telegram: telegram}
}

// Dispatch delivers payment side-effect intents emitted by the engine.
func (d *Dispatcher) Dispatch(ctx context.Context, intents ...recon.Intent) {
	for _, intent := range intents {
		var msg string
		switch intent.Kind {
		case recon.IntentOrderPaid:
			msg = fmt.Sprintf("Buyurtmangiz (%s) uchun to'lov qabul qilindi ✅ (%s)",
				intent.OrderID, services.FormatAmount(intent.Amount))
		case recon.IntentOrderCanceled:
			msg = fmt.Sprintf("Buyurtmangiz (%s) uchun to'lov bekor qilindi ❌", intent.OrderID)
		default:
			continue
		}

		d.persist(ctx, nil, intent.ClientID, msg)
		d.toAdmin(fmt.Sprintf("[ADMIN LOG] %s", msg))
	}
}

// OrderCreated notifies the assigned worker about a fresh order.
func (d *Dispatcher) OrderCreated(ctx context.Context, order *models.Order) {
	msg := fmt.Sprintf("Yangi buyurtma: %s", order.ID)
	if order.WorkerID != nil {
		d.persist(ctx, &order.ClientID, *order.WorkerID, msg)
	}
	d.toAdmin(fmt.Sprintf("[ADMIN LOG] %s", msg))
}

// OrderStatusChanged notifies the client when a worker moves their order.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) {
	if previous == order.Status {
		return
	}

	var msg string
	switch order.Status {
	case models.OrderInProcess:
		msg = fmt.Sprintf("Sizning buyurtmangiz qabul qilindi: %s", order.ID)
	case models.OrderCompleted:
		msg = fmt.Sprintf("Sizning buyurtmangiz (%s) yakunlandi ✅", order.ID)
	case models.OrderCanceled:
		msg = fmt.Sprintf("Sizning buyurtmangiz (%s) bekor qilindi ❌", order.ID)
	default:
		return
	}

	d.persist(ctx, order.WorkerID, order.ClientID, msg)
	d.toAdmin(fmt.Sprintf("[ADMIN LOG] %s", msg))
}

func (d *Dispatcher) persist(ctx context.Context, sender *uuid.UUID, receiver uuid.UUID, msg string) {
	n := models.Notification{
		SenderID:   sender,
		ReceiverID: receiver,
		Message:    msg,
	}
	if err := d.db.WithContext(ctx).Create(&n).Error; err != nil {
		log.Printf("[notify] failed to persist notification: %v", err)
	}
}

func (d *Dispatcher) toAdmin(msg string) {
	if d.telegram == nil {
		return
	}
	go func() {
		if err := d.telegram.SendToAdmin(msg); err != nil {
			log.Printf("[notify] telegram delivery failed: %v", err)
		}
	}()
}
