package wallet

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction kind as stored by the API.
type Kind string

const (
	KindSend       Kind = "send"
	KindReceive    Kind = "receive"
	KindMining     Kind = "mining"
	KindReferral   Kind = "referral"
	KindTaskReward Kind = "task_reward"
	KindBonus      Kind = "bonus"
)

// Known reports whether k is one of the kinds the app renders natively.
func (k Kind) Known() bool {
	switch k {
	case KindSend, KindReceive, KindMining, KindReferral, KindTaskReward, KindBonus:
		return true
	}
	return false
}

// Status is the settlement status of a transaction.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Icon is the icon category a screen uses for a transaction row.
type Icon string

const (
	IconOutgoing Icon = "arrow-up"
	IconIncoming Icon = "arrow-down"
	IconMining   Icon = "pickaxe"
	IconReferral Icon = "users"
	IconTask     Icon = "check-circle"
	IconBonus    Icon = "gift"
	IconGeneric  Icon = "circle"
)

// UserRef is a structured counterpart identity.
type UserRef struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName renders the most specific name available.
func (u UserRef) DisplayName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.ID
}

// Counterpart identifies the other side of a transfer. At most one of
// User and Name is set: Name is only filled when the API sent no
// structured record for that direction.
type Counterpart struct {
	User *UserRef `json:"user,omitempty"`
	Name string   `json:"name,omitempty"`
}

// DisplayName returns the name to show, or "" when unknown.
func (c Counterpart) DisplayName() string {
	if c.User != nil {
		return c.User.DisplayName()
	}
	return c.Name
}

// ChainInfo holds the optional on-chain enrichment fields of a transfer.
type ChainInfo struct {
	Fee           *decimal.Decimal `json:"fee,omitempty"`
	FromAddress   string           `json:"from_address,omitempty"`
	ToAddress     string           `json:"to_address,omitempty"`
	Confirmations *int             `json:"confirmations,omitempty"`
	BlockHash     string           `json:"block_hash,omitempty"`
}

// Details carries the kind-specific fields of a transaction.
// The set of implementations is closed.
type Details interface {
	kind() Kind
}

type SendDetails struct {
	Recipient Counterpart `json:"recipient"`
	Chain     ChainInfo   `json:"chain"`
}

type ReceiveDetails struct {
	Sender Counterpart `json:"sender"`
	Chain  ChainInfo   `json:"chain"`
}

type MiningDetails struct{}

type ReferralDetails struct {
	Referee Counterpart `json:"referee"`
}

type TaskRewardDetails struct {
	TaskID string `json:"task_id,omitempty"`
}

// BonusDetails is a bonus credit. A non-empty TaskID means the bonus was
// paid for a task and is labeled as a task reward.
type BonusDetails struct {
	TaskID string `json:"task_id,omitempty"`
}

// UnknownDetails is used for kinds this client does not recognize.
type UnknownDetails struct {
	RawKind string `json:"raw_kind"`
}

func (SendDetails) kind() Kind       { return KindSend }
func (ReceiveDetails) kind() Kind    { return KindReceive }
func (MiningDetails) kind() Kind     { return KindMining }
func (ReferralDetails) kind() Kind   { return KindReferral }
func (TaskRewardDetails) kind() Kind { return KindTaskReward }
func (BonusDetails) kind() Kind      { return KindBonus }
func (d UnknownDetails) kind() Kind  { return Kind(d.RawKind) }

// Transaction is the canonical, display-ready form of a ledger entry.
type Transaction struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Status      Status          `json:"status"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Description string          `json:"description,omitempty"`
	Details     Details         `json:"details"`
}

// Label is the display label. Bonus transactions tied to a task read
// "Task Reward" while keeping KindBonus.
func (t Transaction) Label() string {
	if d, ok := t.Details.(BonusDetails); ok && d.TaskID != "" {
		return kindLabel(KindTaskReward)
	}
	return kindLabel(t.Kind)
}

// Icon returns the icon category. It follows the stored kind, so a bonus
// relabeled as a task reward keeps the bonus icon.
func (t Transaction) Icon() Icon {
	switch t.Kind {
	case KindSend:
		return IconOutgoing
	case KindReceive:
		return IconIncoming
	case KindMining:
		return IconMining
	case KindReferral:
		return IconReferral
	case KindTaskReward:
		return IconTask
	case KindBonus:
		return IconBonus
	}
	return IconGeneric
}

// IsOutflow reports whether the transaction moved tokens out of the wallet.
func (t Transaction) IsOutflow() bool {
	return t.Kind == KindSend
}

// Counterparty returns the other party's display name, or "".
func (t Transaction) Counterparty() string {
	switch d := t.Details.(type) {
	case SendDetails:
		return d.Recipient.DisplayName()
	case ReceiveDetails:
		return d.Sender.DisplayName()
	case ReferralDetails:
		return d.Referee.DisplayName()
	}
	return ""
}

// Chain returns the on-chain fields for transfers.
func (t Transaction) Chain() (ChainInfo, bool) {
	switch d := t.Details.(type) {
	case SendDetails:
		return d.Chain, true
	case ReceiveDetails:
		return d.Chain, true
	}
	return ChainInfo{}, false
}

// BreakdownEntry is one component of the balance.
type BreakdownEntry struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
}

// Balance is the wallet balance with its decomposition.
type Balance struct {
	Total     decimal.Decimal  `json:"total"`
	Breakdown []BreakdownEntry `json:"breakdown"`
}

// BreakdownMatches reports whether the breakdown sums to the total. The
// backend owns this invariant; the client only surfaces it in diagnostics.
func (b Balance) BreakdownMatches() bool {
	sum := decimal.Zero
	for _, e := range b.Breakdown {
		sum = sum.Add(e.Amount)
	}
	return sum.Equal(b.Total)
}

var breakdownOrder = map[string]int{
	"mined":       0,
	"transferred": 1,
	"referral":    2,
	"bonus":       3,
}

// newBalance converts an API breakdown map into a stably ordered balance.
func newBalance(total decimal.Decimal, parts map[string]decimal.Decimal) Balance {
	entries := make([]BreakdownEntry, 0, len(parts))
	for category, amount := range parts {
		entries = append(entries, BreakdownEntry{Category: category, Amount: amount})
	}
	sort.Slice(entries, func(i, j int) bool {
		ri, iKnown := breakdownOrder[entries[i].Category]
		rj, jKnown := breakdownOrder[entries[j].Category]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown != jKnown:
			return iKnown
		}
		return entries[i].Category < entries[j].Category
	})
	return Balance{Total: total, Breakdown: entries}
}
