package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Routing keys, one per event type.
const (
	RoutingTermsReconciled = "terms.reconciled"
	RoutingPaymentOrphaned = "payment.orphaned"
)

// TermsReconciledMessage is published after a reconciliation pass changed at least one
// payment of a commitment. Consumers re-read the commitment for details.
type TermsReconciledMessage struct {
	Type         string    `json:"type"`
	OwnerID      string    `json:"owner_id"`
	CommitmentID string    `json:"commitment_id"`
	Reassigned   int       `json:"reassigned"`
	Orphaned     int       `json:"orphaned"`
	Timestamp    time.Time `json:"timestamp"`
}

// PaymentOrphanedMessage is published for each payment a reconciliation pass left without a
// governing term.
type PaymentOrphanedMessage struct {
	Type         string    `json:"type"`
	OwnerID      string    `json:"owner_id"`
	CommitmentID string    `json:"commitment_id"`
	PaymentID    string    `json:"payment_id"`
	Period       string    `json:"period"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewTermsReconciledMessage(owner, commitmentID string, reassigned, orphaned int) *TermsReconciledMessage {
	return &TermsReconciledMessage{
		Type:         RoutingTermsReconciled,
		OwnerID:      owner,
		CommitmentID: commitmentID,
		Reassigned:   reassigned,
		Orphaned:     orphaned,
		Timestamp:    time.Now().UTC(),
	}
}

func NewPaymentOrphanedMessage(owner, commitmentID, paymentID, period string) *PaymentOrphanedMessage {
	return &PaymentOrphanedMessage{
		Type:         RoutingPaymentOrphaned,
		OwnerID:      owner,
		CommitmentID: commitmentID,
		PaymentID:    paymentID,
		Period:       period,
		Timestamp:    time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TermsReconciledMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ToJSON converts the message to JSON bytes
func (m *PaymentOrphanedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a message body into the event type named by its "type" field.
func Decode(data []byte) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case RoutingTermsReconciled:
		var m TermsReconciledMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	case RoutingPaymentOrphaned:
		var m PaymentOrphanedMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return &m, nil
	}
	return nil, fmt.Errorf("unknown message type %q", head.Type)
}
