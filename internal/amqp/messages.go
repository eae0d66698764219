package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType doubles as the routing key on the topic exchange.
type EventType string

const (
	EventMemberCreated       EventType = "member.created"
	EventMemberDeleted       EventType = "member.deleted"
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionDeleted  EventType = "transaction.deleted"
	EventLeaveRecorded       EventType = "leave.recorded"
	EventLeaveDeleted        EventType = "leave.deleted"
	EventBalanceRepaired     EventType = "balance.repaired"
)

// LedgerEvent is a lightweight notification that something changed for a member.
// Consumers re-read the member from the database instead of trusting the payload.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	MemberID  int64     `json:"member_id"`
	EntityID  int64     `json:"entity_id,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(typ EventType, memberID, entityID int64) LedgerEvent {
	return LedgerEvent{
		Type:      typ,
		MemberID:  memberID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// AffectsBalance reports whether the member's balance row may have changed.
func (e LedgerEvent) AffectsBalance() bool {
	switch e.Type {
	case EventMemberCreated, EventMemberDeleted, EventTransactionRecorded, EventTransactionDeleted, EventBalanceRepaired:
		return true
	}
	return false
}

func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, err
	}
	if e.Type == "" || e.MemberID <= 0 {
		return LedgerEvent{}, fmt.Errorf("incomplete ledger event: type=%q member_id=%d", e.Type, e.MemberID)
	}
	return e, nil
}
