package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rimborsi/internal/core"
)

type MessageType string

const (
	TypeBudgetExceeded MessageType = "budget.exceeded"
	TypeStatusChanged  MessageType = "expense.status_changed"
)

// Message is the envelope published on the workflow exchange. Exactly one
// payload is set, matching Type.
type Message struct {
	ID             string                 `json:"message_id"`
	Type           MessageType            `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	BudgetExceeded *BudgetExceededPayload `json:"budget_exceeded,omitempty"`
	StatusChanged  *StatusChangedPayload  `json:"status_changed,omitempty"`
}

type BudgetExceededPayload struct {
	BudgetType   core.BudgetType   `json:"budget_type"`
	Window       core.BudgetWindow `json:"window"`
	Period       string            `json:"period"`
	ScopeID      int64             `json:"scope_id"`
	ScopeName    string            `json:"scope_name"`
	UserID       int64             `json:"user_id"`
	ExpenseID    int64             `json:"expense_id"`
	CurrentTotal decimal.Decimal   `json:"current_total"`
	NewTotal     decimal.Decimal   `json:"new_total"`
	BudgetLimit  decimal.Decimal   `json:"budget_limit"`
	Currency     string            `json:"currency"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

type StatusChangedPayload struct {
	ExpenseID  int64              `json:"expense_id"`
	OwnerID    int64              `json:"owner_id"`
	ActorID    int64              `json:"actor_id"`
	From       core.ExpenseStatus `json:"from"`
	To         core.ExpenseStatus `json:"to"`
	Amount     decimal.Decimal    `json:"amount"`
	Currency   string             `json:"currency"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func newMessage(t MessageType) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// NewBudgetExceededMessage wraps a budget event for publishing.
func NewBudgetExceededMessage(ev core.BudgetExceededEvent) *Message {
	msg := newMessage(TypeBudgetExceeded)
	msg.BudgetExceeded = &BudgetExceededPayload{
		BudgetType:   ev.BudgetType,
		Window:       ev.Window,
		Period:       ev.Period(),
		ScopeID:      ev.ScopeID,
		ScopeName:    ev.ScopeName,
		UserID:       ev.UserID,
		ExpenseID:    ev.ExpenseID,
		CurrentTotal: ev.CurrentTotal,
		NewTotal:     ev.NewTotal,
		BudgetLimit:  ev.BudgetLimit,
		Currency:     ev.Currency,
		OccurredAt:   ev.OccurredAt,
	}
	return msg
}

// NewStatusChangedMessage wraps a committed status change for publishing.
func NewStatusChangedMessage(ev core.StatusChangedEvent) *Message {
	msg := newMessage(TypeStatusChanged)
	msg.StatusChanged = &StatusChangedPayload{
		ExpenseID:  ev.ExpenseID,
		OwnerID:    ev.OwnerID,
		ActorID:    ev.ActorID,
		From:       ev.From,
		To:         ev.To,
		Amount:     ev.Amount,
		Currency:   ev.Currency,
		OccurredAt: ev.OccurredAt,
	}
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON decodes an envelope and checks that its payload matches its type.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case TypeBudgetExceeded:
		if msg.BudgetExceeded == nil {
			return nil, fmt.Errorf("message %s: missing budget_exceeded payload", msg.ID)
		}
	case TypeStatusChanged:
		if msg.StatusChanged == nil {
			return nil, fmt.Errorf("message %s: missing status_changed payload", msg.ID)
		}
	default:
		return nil, fmt.Errorf("message %s: unknown type %q", msg.ID, msg.Type)
	}
	return &msg, nil
}

// StatusChangedEvent converts the payload back to the domain event.
func (p *StatusChangedPayload) StatusChangedEvent() core.StatusChangedEvent {
	return core.StatusChangedEvent{
		ExpenseID:  p.ExpenseID,
		OwnerID:    p.OwnerID,
		ActorID:    p.ActorID,
		From:       p.From,
		To:         p.To,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: p.OccurredAt,
	}
}

// BudgetExceededEvent converts the payload back to the domain event. The
// period is split into Date or YearMonth depending on the window.
func (p *BudgetExceededPayload) BudgetExceededEvent() core.BudgetExceededEvent {
	ev := core.BudgetExceededEvent{
		BudgetType:   p.BudgetType,
		Window:       p.Window,
		ScopeID:      p.ScopeID,
		ScopeName:    p.ScopeName,
		UserID:       p.UserID,
		ExpenseID:    p.ExpenseID,
		CurrentTotal: p.CurrentTotal,
		NewTotal:     p.NewTotal,
		BudgetLimit:  p.BudgetLimit,
		Currency:     p.Currency,
		OccurredAt:   p.OccurredAt,
	}
	if p.Window == core.WindowDaily {
		if d, err := core.ParseDate(p.Period); err == nil {
			ev.Date = d
		}
	} else {
		ev.YearMonth = p.Period
	}
	return ev
}
