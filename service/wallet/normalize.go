package wallet

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/brojonat/celf/client"
	"github.com/brojonat/celf/service/metrics"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrMalformedRecord is returned for records that cannot be displayed.
var ErrMalformedRecord = errors.New("malformed transaction record")

var kindLabels = map[Kind]string{
	KindSend:       "Sent",
	KindReceive:    "Received",
	KindMining:     "Mining",
	KindReferral:   "Referral",
	KindTaskReward: "Task Reward",
	KindBonus:      "Bonus",
}

// kindLabel returns the display label for a kind. Unknown kinds are
// title-cased with underscores turned into spaces.
func kindLabel(k Kind) string {
	if label, ok := kindLabels[k]; ok {
		return label
	}
	raw := strings.TrimSpace(strings.ReplaceAll(string(k), "_", " "))
	if raw == "" {
		return "Transaction"
	}
	// Casers are stateful, so one is built per call.
	return cases.Title(language.English).String(raw)
}

var statusAliases = map[string]Status{
	"pending":   StatusPending,
	"completed": StatusCompleted,
	"complete":  StatusCompleted,
	"confirmed": StatusCompleted,
	"success":   StatusCompleted,
	"failed":    StatusFailed,
	"error":     StatusFailed,
	"rejected":  StatusFailed,
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalize maps one raw API record into a canonical Transaction.
// It has no side effects. Records without an id or amount are rejected
// with an error wrapping ErrMalformedRecord.
func Normalize(raw client.RawTransaction) (Transaction, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = strings.TrimSpace(raw.LegacyID)
	}
	if id == "" {
		return Transaction{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}
	if raw.Amount == nil {
		return Transaction{}, fmt.Errorf("%w: missing amount for %s", ErrMalformedRecord, id)
	}

	kindStr := raw.Kind
	if strings.TrimSpace(kindStr) == "" {
		kindStr = raw.Type
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(kindStr)))

	amount := *raw.Amount
	switch {
	case kind == KindSend:
		amount = amount.Abs().Neg()
	case kind.Known():
		amount = amount.Abs()
	}

	txn := Transaction{
		ID:          id,
		Kind:        kind,
		Amount:      amount,
		Status:      normalizeStatus(raw.Status),
		OccurredAt:  resolveTimestamp(raw.CreatedAt, raw.Timestamp),
		Description: strings.TrimSpace(raw.Description),
	}

	chain := ChainInfo{
		Fee:           raw.Fee,
		FromAddress:   raw.FromAddress,
		ToAddress:     raw.ToAddress,
		Confirmations: raw.Confirmations,
		BlockHash:     raw.BlockHash,
	}
	taskID := strings.TrimSpace(raw.TaskID)

	switch kind {
	case KindSend:
		txn.Details = SendDetails{
			Recipient: resolveCounterpart(raw.ToUser, raw.RecipientName),
			Chain:     chain,
		}
	case KindReceive:
		txn.Details = ReceiveDetails{
			Sender: resolveCounterpart(raw.FromUser, raw.SenderName),
			Chain:  chain,
		}
	case KindMining:
		txn.Details = MiningDetails{}
	case KindReferral:
		txn.Details = ReferralDetails{
			Referee: resolveCounterpart(raw.FromUser, raw.SenderName),
		}
	case KindTaskReward:
		txn.Details = TaskRewardDetails{TaskID: taskID}
	case KindBonus:
		txn.Details = BonusDetails{TaskID: taskID}
	default:
		txn.Details = UnknownDetails{RawKind: string(kind)}
	}

	return txn, nil
}

// resolveTimestamp prefers createdAt and only looks at timestamp when
// createdAt is absent. An unparseable value yields the zero time.
func resolveTimestamp(createdAt, timestamp string) time.Time {
	value := strings.TrimSpace(createdAt)
	if value == "" {
		value = strings.TrimSpace(timestamp)
	}
	t, err := parseTimestamp(value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// resolveCounterpart uses the structured record when present and the
// plain name otherwise, never both.
func resolveCounterpart(user *client.UserRef, name string) Counterpart {
	if user != nil {
		return Counterpart{User: &UserRef{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Username:  user.Username,
		}}
	}
	return Counterpart{Name: strings.TrimSpace(name)}
}

func normalizeStatus(raw string) Status {
	if s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusPending
}

// Normalizer normalizes batches, dropping and logging malformed records.
type Normalizer struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewNormalizer creates a Normalizer. Both arguments may be nil.
func NewNormalizer(logger *slog.Logger, m *metrics.Metrics) *Normalizer {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Normalizer{logger: logger, metrics: m}
}

// NormalizeAll normalizes raws in order. Rejected records are excluded
// and never fail the batch; accepted records keep their relative order.
func (n *Normalizer) NormalizeAll(raws []client.RawTransaction) []Transaction {
	txns := make([]Transaction, 0, len(raws))
	rejected := 0
	for i, raw := range raws {
		txn, err := Normalize(raw)
		if err != nil {
			rejected++
			n.logger.Warn("dropping malformed transaction record",
				"index", i,
				"error", err,
			)
			continue
		}
		txns = append(txns, txn)
	}

	if n.metrics != nil {
		n.metrics.RecordRecordsNormalized(len(txns))
		if rejected > 0 {
			n.metrics.RecordRecordsRejected(rejected)
		}
	}
	return txns
}
