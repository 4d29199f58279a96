package amqp

import (
	"encoding/json"
	"time"
)

// TransactionCommittedMessage announces that a ledger transaction was
// committed. It carries only the id; the mirror worker fetches the current
// row from storage, so a stale message never mirrors stale data.
type TransactionCommittedMessage struct {
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionCommittedMessage(transactionID string) *TransactionCommittedMessage {
	return &TransactionCommittedMessage{
		TransactionID: transactionID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionCommittedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionCommittedMessageFromJSON(data []byte) (*TransactionCommittedMessage, error) {
	var msg TransactionCommittedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
