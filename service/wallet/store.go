package wallet

import (
	"sync"
	"time"
)

// DefaultTransactionWindow bounds the number of cached transactions.
const DefaultTransactionWindow = 50

// Snapshot is a read-only copy of the wallet state for diagnostics.
type Snapshot struct {
	Phase              Phase         `json:"phase,omitempty"`
	Balance            *Balance      `json:"balance,omitempty"`
	BalanceUpdatedAt   time.Time     `json:"balance_updated_at"`
	Transactions       []Transaction `json:"transactions"`
	TransactionsLoaded bool          `json:"transactions_loaded"`
	TransactionsAt     time.Time     `json:"transactions_updated_at"`
	LastError          string        `json:"last_error,omitempty"`
	LastSuccess        time.Time     `json:"last_success"`
	Generation         uint64        `json:"generation"`
}

// Store holds the cached wallet state of one session. Reads never block
// on network I/O. Writes are unexported: only the Controller mutates it.
//
// Every write carries the session generation it was started under and is
// discarded when the store has been invalidated since.
type Store struct {
	mu sync.RWMutex

	window int

	balance        *Balance
	balanceAt      time.Time
	transactions   []Transaction
	txnsLoaded     bool
	transactionsAt time.Time
	lastErr        error
	lastSuccess    time.Time
	generation     uint64
}

// NewStore creates an empty store keeping at most window transactions.
func NewStore(window int) *Store {
	if window <= 0 {
		window = DefaultTransactionWindow
	}
	return &Store{window: window}
}

// Window returns the maximum number of cached transactions.
func (s *Store) Window() int {
	return s.window
}

// Balance returns the last known balance and whether one was ever loaded.
func (s *Store) Balance() (Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.balance == nil {
		return Balance{}, false
	}
	return copyBalance(*s.balance), true
}

// Transactions returns the cached transactions, most recent first.
func (s *Store) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

// TransactionsLoaded reports whether a transaction fetch has ever
// succeeded in this session. It separates "no transactions yet" from
// "never fetched".
func (s *Store) TransactionsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.txnsLoaded
}

// LastError returns the error of the last refresh, or nil.
func (s *Store) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// LastSuccess returns when a refresh last completed without error.
func (s *Store) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccess
}

// Generation returns the current session generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Invalidate clears all cached state (sign-out) and starts a new
// generation so that results of fetches already in flight are dropped.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = nil
	s.balanceAt = time.Time{}
	s.transactions = nil
	s.txnsLoaded = false
	s.transactionsAt = time.Time{}
	s.lastErr = nil
	s.lastSuccess = time.Time{}
	s.generation++
}

// DebugDump returns a snapshot of the current state. It has no side effects.
func (s *Store) DebugDump() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		BalanceUpdatedAt:   s.balanceAt,
		Transactions:       make([]Transaction, len(s.transactions)),
		TransactionsLoaded: s.txnsLoaded,
		TransactionsAt:     s.transactionsAt,
		LastSuccess:        s.lastSuccess,
		Generation:         s.generation,
	}
	copy(snap.Transactions, s.transactions)
	if s.balance != nil {
		b := copyBalance(*s.balance)
		snap.Balance = &b
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// lookup finds a cached transaction by id.
func (s *Store) lookup(id string) (Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, txn := range s.transactions {
		if txn.ID == id {
			return txn, true
		}
	}
	return Transaction{}, false
}

// setBalance replaces the balance atomically. It reports whether the
// write was applied.
func (s *Store) setBalance(gen uint64, b Balance, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	cp := copyBalance(b)
	s.balance = &cp
	s.balanceAt = at
	return true
}

// setTransactions replaces the transaction list atomically, keeping at
// most window entries.
func (s *Store) setTransactions(gen uint64, txns []Transaction, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	n := len(txns)
	if n > s.window {
		n = s.window
	}
	s.transactions = make([]Transaction, n)
	copy(s.transactions, txns[:n])
	s.txnsLoaded = true
	s.transactionsAt = at
	return true
}

// setResult records the outcome of a refresh: a nil err clears the last
// error and marks a success.
func (s *Store) setResult(gen uint64, err error, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.lastErr = err
	if err == nil {
		s.lastSuccess = at
	}
	return true
}

func copyBalance(b Balance) Balance {
	out := Balance{Total: b.Total}
	if b.Breakdown != nil {
		out.Breakdown = make([]BreakdownEntry, len(b.Breakdown))
		copy(out.Breakdown, b.Breakdown)
	}
	return out
}
