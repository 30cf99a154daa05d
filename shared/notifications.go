package shared

import (
	"encoding/json"
	"fmt"
)

type NotificationType string

const (
	NotificationTimeWarning   = NotificationType("time_warning")   // minutes left on the attempt clock
	NotificationForcedTimeout = NotificationType("forced_timeout") // server ended the attempt, submit now
	NotificationQuizUpdate    = NotificationType("quiz_update")    // quiz content or availability changed
)

// NotificationMessage is one server-pushed event from the student's queue.
// It is consumed once by whoever handles it and not retained.
type NotificationMessage struct {
	Type             NotificationType `json:"type"`
	AttemptID        string           `json:"attemptId,omitempty"`
	Message          string           `json:"message,omitempty"`
	MinutesRemaining int              `json:"minutesRemaining,omitempty"`
	Data             json.RawMessage  `json:"data,omitempty"`
}

// ParseNotification decodes a raw broker payload into a typed message.
// Payloads that do not carry one of the known types are rejected here, at the
// channel boundary, so handlers never see an untyped blob.
func ParseNotification(raw []byte) (NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return NotificationMessage{}, fmt.Errorf("decode notification: %w", err)
	}
	switch msg.Type {
	case NotificationTimeWarning, NotificationForcedTimeout, NotificationQuizUpdate:
		return msg, nil
	default:
		return NotificationMessage{}, fmt.Errorf("unknown notification type %q", msg.Type)
	}
}
