package amqp

import (
	"encoding/json"
	"time"
)

// StatementSyncMessage asks the worker to re-export one user's monthly
// statement. It carries only the scope key; the worker recomputes the ledger
// from the database.
type StatementSyncMessage struct {
	UserID    int64     `json:"user_id"`
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStatementSyncMessage creates a sync message for one (user, month).
func NewStatementSyncMessage(userID int64, year, month int) *StatementSyncMessage {
	return &StatementSyncMessage{
		UserID:    userID,
		Year:      year,
		Month:     month,
		Timestamp: time.Now(),
	}
}

func (m *StatementSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func StatementSyncMessageFromJSON(data []byte) (*StatementSyncMessage, error) {
	var msg StatementSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReminderDueMessage is published when a user's delivery reminder time is
// reached. A notifier outside this repo consumes the queue.
type ReminderDueMessage struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	TimeOfDay string    `json:"time_of_day"`
	Timestamp time.Time `json:"timestamp"`
}

func NewReminderDueMessage(userID int64, name, timeOfDay string) *ReminderDueMessage {
	return &ReminderDueMessage{
		UserID:    userID,
		Name:      name,
		TimeOfDay: timeOfDay,
		Timestamp: time.Now(),
	}
}

func (m *ReminderDueMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ReminderDueMessageFromJSON(data []byte) (*ReminderDueMessage, error) {
	var msg ReminderDueMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
