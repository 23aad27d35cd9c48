package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/yourusername/quantcapital-engine/pkg/config"
	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

// NATS subjects for the order routing service.
const (
	subjectOrderNew    = "ors.order.new"
	subjectOrderCancel = "ors.order.cancel"
	subjectExecPrefix  = "ors.exec." // + account
)

// orderRequest is the wire form of an order submission or cancel.
type orderRequest struct {
	Account  string  `json:"account"`
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"type"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
}

// orderAck is the broker's synchronous reply to a request.
type orderAck struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// execReport is an asynchronous execution report from the broker.
type execReport struct {
	OrderID         string  `json:"order_id"`
	Status          string  `json:"status"` // FILLED | PARTIAL | REJECTED | CANCELLED
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price"`
	ExchangeTradeID string  `json:"exchange_trade_id,omitempty"`
	Reason          string  `json:"reason,omitempty"`
}

// LiveHandler routes orders to a broker over NATS request-reply and
// translates its asynchronous execution reports into fill events.
// Submissions are throttled by a token-bucket rate limit.
type LiveHandler struct {
	*baseHandler
	cfg config.LiveBrokerConfig

	nc      *nats.Conn
	sub     *nats.Subscription
	limiter *rate.Limiter
	timeout time.Duration
}

// NewLiveHandler creates a live execution handler over an established
// NATS connection.
func NewLiveHandler(publisher Publisher, nc *nats.Conn, cfg config.LiveBrokerConfig,
	fees entity.FeeSchedule) *LiveHandler {

	perSec := cfg.OrdersPerSec
	if perSec <= 0 {
		perSec = 20
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	h := &LiveHandler{
		baseHandler: newBaseHandler("LiveExecution", publisher, fees),
		cfg:         cfg,
		nc:          nc,
		limiter:     rate.NewLimiter(rate.Limit(perSec), perSec),
		timeout:     timeout,
	}
	h.exec = h
	return h
}

// Initialize subscribes to the account's execution report stream.
func (h *LiveHandler) Initialize() error {
	if h.nc == nil {
		return fmt.Errorf("live execution requires a NATS connection")
	}

	subject := subjectExecPrefix + h.cfg.Account
	sub, err := h.nc.Subscribe(subject, h.onExecReport)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	h.sub = sub

	log.Printf("[LiveExecution] Initialized (account=%s, rate=%d/s, timeout=%v)",
		h.cfg.Account, h.cfg.OrdersPerSec, h.timeout)
	return nil
}

// Destroy cancels active orders and drops the subscription.
func (h *LiveHandler) Destroy() error {
	h.CancelAll()
	if h.sub != nil {
		if err := h.sub.Unsubscribe(); err != nil {
			log.Printf("[LiveExecution] Unsubscribe: %v", err)
		}
	}
	return nil
}

// executeOrder implements the executor contract: throttle, then submit
// via request-reply. Fills arrive asynchronously on the report stream.
func (h *LiveHandler) executeOrder(order *entity.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("order rate limit: %w", err)
	}

	ack, err := h.request(subjectOrderNew, order)
	if err != nil {
		return fmt.Errorf("broker submit: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("broker rejected order: %s", ack.Reason)
	}
	return nil
}

// cancelOrder implements the executor contract. A live cancel may fail;
// a failed cancel leaves the order status unchanged.
func (h *LiveHandler) cancelOrder(order *entity.Order) bool {
	ack, err := h.request(subjectOrderCancel, order)
	if err != nil {
		log.Printf("[LiveExecution] Cancel %s failed: %v", order.OrderID, err)
		return false
	}
	if !ack.Accepted {
		log.Printf("[LiveExecution] Cancel %s refused: %s", order.OrderID, ack.Reason)
	}
	return ack.Accepted
}

func (h *LiveHandler) request(subject string, order *entity.Order) (*orderAck, error) {
	req := orderRequest{
		Account:  h.cfg.Account,
		OrderID:  order.OrderID,
		Symbol:   order.Symbol,
		Side:     string(order.Side),
		Type:     string(order.Type),
		Quantity: order.Quantity,
		Price:    order.Price,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	msg, err := h.nc.Request(subject, payload, h.timeout)
	if err != nil {
		return nil, err
	}

	var ack orderAck
	if err := json.Unmarshal(msg.Data, &ack); err != nil {
		return nil, fmt.Errorf("decode broker reply: %w", err)
	}
	return &ack, nil
}

// onExecReport translates one broker report into the shared fill path.
func (h *LiveHandler) onExecReport(msg *nats.Msg) {
	var report execReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		log.Printf("[LiveExecution] Bad execution report: %v", err)
		return
	}

	order, ok := h.ActiveOrder(report.OrderID)
	if !ok {
		log.Printf("[LiveExecution] Report for unknown order %s", report.OrderID)
		return
	}

	switch report.Status {
	case "FILLED", "PARTIAL":
		if report.Quantity <= 0 || report.Price <= 0 {
			log.Printf("[LiveExecution] Report for %s has bad terms: %d@%.4f",
				report.OrderID, report.Quantity, report.Price)
			return
		}
		h.processFill(order, report.Quantity, report.Price, false, report.ExchangeTradeID)
	case "REJECTED":
		h.rejectOrder(order, report.Reason)
	case "CANCELLED":
		order.Cancel(report.Reason)
		h.removeActive(order.OrderID)
	default:
		log.Printf("[LiveExecution] Unknown report status %q for %s",
			report.Status, report.OrderID)
	}
}
