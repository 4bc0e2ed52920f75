package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/celf/service/wallet"
)

// SubjectPrefix is the first token of every wallet event subject.
const SubjectPrefix = "wallet"

// WalletEvent is the wallet state published after a successful refresh.
// It is published to the subject "wallet.{user_id}" in JetStream.
type WalletEvent struct {
	UserID string `json:"user_id"`

	// Balance information
	Balance   string            `json:"balance"`
	Breakdown map[string]string `json:"breakdown,omitempty"`

	// Recent transactions, most recent first
	Transactions []TransactionSummary `json:"transactions"`

	// Sync metadata
	LastSuccess time.Time `json:"last_success"`
	Generation  uint64    `json:"generation"`

	PublishedAt time.Time `json:"published_at"`
}

// TransactionSummary is the compact form of a transaction inside a WalletEvent.
type TransactionSummary struct {
	ID         string        `json:"id"`
	Kind       wallet.Kind   `json:"kind"`
	Label      string        `json:"label"`
	Amount     string        `json:"amount"`
	Status     wallet.Status `json:"status"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// FromSnapshot converts a wallet snapshot to a WalletEvent for publishing.
func FromSnapshot(userID string, snap wallet.Snapshot) *WalletEvent {
	event := &WalletEvent{
		UserID:       userID,
		Transactions: make([]TransactionSummary, 0, len(snap.Transactions)),
		LastSuccess:  snap.LastSuccess,
		Generation:   snap.Generation,
		PublishedAt:  time.Now().UTC(),
	}

	if snap.Balance != nil {
		event.Balance = wallet.FormatAmount(snap.Balance.Total)
		event.Breakdown = make(map[string]string, len(snap.Balance.Breakdown))
		for _, e := range snap.Balance.Breakdown {
			event.Breakdown[e.Category] = wallet.FormatAmount(e.Amount)
		}
	}

	for _, txn := range snap.Transactions {
		event.Transactions = append(event.Transactions, TransactionSummary{
			ID:         txn.ID,
			Kind:       txn.Kind,
			Label:      txn.Label(),
			Amount:     wallet.FormatAmount(txn.Amount),
			Status:     txn.Status,
			OccurredAt: txn.OccurredAt,
		})
	}

	return event
}

// DecodeWalletEvent parses a message payload.
func DecodeWalletEvent(data []byte) (*WalletEvent, error) {
	var event WalletEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to decode wallet event: %w", err)
	}
	return &event, nil
}

// Subject returns the subject wallet events of userID are published to.
// Bytes that are not valid in a subject token, and "_" itself, are written
// as "_" followed by two hex digits, so distinct user IDs never share a
// subject. An empty user ID maps to the token "_".
func Subject(userID string) string {
	if userID == "" {
		return SubjectPrefix + "._"
	}
	var b strings.Builder
	b.Grow(len(userID))
	for i := 0; i < len(userID); i++ {
		c := userID[i]
		switch c {
		case '_', '.', '*', '>', ' ', '\t', '\r', '\n':
			fmt.Fprintf(&b, "_%02X", c)
		default:
			b.WriteByte(c)
		}
	}
	return SubjectPrefix + "." + b.String()
}
