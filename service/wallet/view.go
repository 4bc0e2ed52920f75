package wallet

import (
	"fmt"
	"strconv"
)

// TokenSymbol is the platform token's ticker.
const TokenSymbol = "CELF"

// BreakdownView is one formatted balance component.
type BreakdownView struct {
	Category string `json:"category"`
	Label    string `json:"label"`
	Amount   string `json:"amount"`
}

// Row is one formatted transaction row.
type Row struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	Label        string `json:"label"`
	Icon         Icon   `json:"icon"`
	Amount       string `json:"amount"`
	Outflow      bool   `json:"outflow"`
	Status       Status `json:"status"`
	Date         string `json:"date"`
	Counterparty string `json:"counterparty,omitempty"`
	Description  string `json:"description,omitempty"`
}

// ViewModel is everything the wallet screen renders.
type ViewModel struct {
	Balance       string          `json:"balance"`
	BalanceSymbol string          `json:"balance_symbol"`
	HasBalance    bool            `json:"has_balance"`
	Breakdown     []BreakdownView `json:"breakdown"`
	Transactions  []Row           `json:"transactions"`

	// IsLoading is true while the first fetch of a session runs.
	IsLoading    bool `json:"is_loading"`
	IsRefreshing bool `json:"is_refreshing"`
	// RefreshFailed is set when the last refresh failed; cached values
	// above are still the last good ones.
	RefreshFailed bool   `json:"refresh_failed"`
	ErrorMessage  string `json:"error_message,omitempty"`
	// IsEmpty is true only when a transaction fetch succeeded with no
	// records, never when fetching failed.
	IsEmpty bool `json:"is_empty"`
}

// Detail is the formatted transaction detail view.
type Detail struct {
	Row
	LongDate      string `json:"long_date"`
	Fee           string `json:"fee,omitempty"`
	FromAddress   string `json:"from_address,omitempty"`
	ToAddress     string `json:"to_address,omitempty"`
	Confirmations string `json:"confirmations,omitempty"`
	BlockHash     string `json:"block_hash,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	ShareText     string `json:"share_text"`
}

var breakdownLabels = map[string]string{
	"mined":       "Mined",
	"transferred": "Transferred",
	"referral":    "Referrals",
	"bonus":       "Bonuses",
}

// View derives the screen's view model from the current state.
func (c *Controller) View() ViewModel {
	balance, hasBalance := c.store.Balance()
	txns := c.store.Transactions()
	loaded := c.store.TransactionsLoaded()
	lastErr := c.store.LastError()
	refreshing := c.IsRefreshing()

	vm := ViewModel{
		BalanceSymbol: TokenSymbol,
		HasBalance:    hasBalance,
		Breakdown:     make([]BreakdownView, 0, len(balance.Breakdown)),
		Transactions:  c.Rows(txns, c.displayWindow),
		IsRefreshing:  refreshing,
		IsLoading:     refreshing && !hasBalance && !loaded,
		RefreshFailed: lastErr != nil,
		IsEmpty:       loaded && lastErr == nil && len(txns) == 0,
	}
	if lastErr != nil {
		vm.ErrorMessage = "Could not refresh wallet"
	}
	if hasBalance {
		vm.Balance = c.formatter.Balance(balance.Total)
		for _, e := range balance.Breakdown {
			vm.Breakdown = append(vm.Breakdown, BreakdownView{
				Category: e.Category,
				Label:    breakdownLabel(e.Category),
				Amount:   c.formatter.Balance(e.Amount),
			})
		}
	}
	return vm
}

// History returns every cached transaction as rows.
func (c *Controller) History() []Row {
	return c.Rows(c.store.Transactions(), 0)
}

// Rows formats transactions as list rows, keeping at most limit rows
// when limit is positive.
func (c *Controller) Rows(txns []Transaction, limit int) []Row {
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	rows := make([]Row, 0, len(txns))
	for _, txn := range txns {
		rows = append(rows, c.row(txn))
	}
	return rows
}

func (c *Controller) row(txn Transaction) Row {
	return Row{
		ID:           txn.ID,
		Kind:         txn.Kind,
		Label:        txn.Label(),
		Icon:         txn.Icon(),
		Amount:       FormatSignedAmount(txn.Amount),
		Outflow:      txn.IsOutflow(),
		Status:       txn.Status,
		Date:         c.formatter.ShortTime(txn.OccurredAt),
		Counterparty: txn.Counterparty(),
		Description:  txn.Description,
	}
}

// Detail formats one transaction for the detail view.
func (c *Controller) Detail(txn Transaction) Detail {
	d := Detail{
		Row:       c.row(txn),
		LongDate:  c.formatter.LongTime(txn.OccurredAt),
		ShareText: ShareText(txn),
	}
	if chain, ok := txn.Chain(); ok {
		if chain.Fee != nil {
			d.Fee = FormatAmount(*chain.Fee)
		}
		d.FromAddress = chain.FromAddress
		d.ToAddress = chain.ToAddress
		if chain.Confirmations != nil {
			d.Confirmations = strconv.Itoa(*chain.Confirmations)
		}
		d.BlockHash = chain.BlockHash
	}
	switch details := txn.Details.(type) {
	case BonusDetails:
		d.TaskID = details.TaskID
	case TaskRewardDetails:
		d.TaskID = details.TaskID
	}
	return d
}

// ShareText is the string handed to the platform share sheet, e.g.
// "-2.500000 CELF send - ID: tx1".
func ShareText(txn Transaction) string {
	return fmt.Sprintf("%s %s %s - ID: %s", FormatAmount(txn.Amount), TokenSymbol, txn.Kind, txn.ID)
}

func breakdownLabel(category string) string {
	if label, ok := breakdownLabels[category]; ok {
		return label
	}
	return kindLabel(Kind(category))
}

// Navigator is the external router the screen's actions hand off to.
type Navigator interface {
	Send()
	Receive()
	History()
	Transaction(id string)
}

// Actions are the screen's callbacks. They pass straight through to the
// navigator.
type Actions struct {
	OnSend            func()
	OnReceive         func()
	OnViewHistory     func()
	OnViewTransaction func(id string)
}

// NewActions binds the screen callbacks to nav.
func NewActions(nav Navigator) Actions {
	return Actions{
		OnSend:            nav.Send,
		OnReceive:         nav.Receive,
		OnViewHistory:     nav.History,
		OnViewTransaction: nav.Transaction,
	}
}
