package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event is one reconciliation audit record, emitted as a JSON log line.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TransactionID int       `json:"transaction_id"`
	UserID        int       `json:"user_id"`
	Entity        string    `json:"entity,omitempty"`
	Name          string    `json:"name,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

// LogPosting records a balance mutation applied for one transaction.
func (a *Logger) LogPosting(transactionID, userID int, entity, name, amount string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "POSTING",
		TransactionID: transactionID,
		UserID:        userID,
		Entity:        entity,
		Name:          name,
		Amount:        amount,
		Status:        "APPLIED",
	})
}

// LogSkippedLeg records a posting leg dropped because the named balance
// entity does not exist for the owner.
func (a *Logger) LogSkippedLeg(transactionID, userID int, entity, name string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "POSTING",
		TransactionID: transactionID,
		UserID:        userID,
		Entity:        entity,
		Name:          name,
		Status:        "SKIPPED",
		Details:       map[string]string{"reason": "reference not found"},
	})
}

func (a *Logger) LogError(transactionID, userID int, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TransactionID: transactionID,
		UserID:        userID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
