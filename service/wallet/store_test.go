package wallet

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTxn(id string, kind Kind, amount string) Transaction {
	return Transaction{
		ID:         id,
		Kind:       kind,
		Amount:     decimal.RequireFromString(amount),
		Status:     StatusCompleted,
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Details:    MiningDetails{},
	}
}

func TestNewStore_DefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultTransactionWindow, NewStore(0).Window())
	assert.Equal(t, DefaultTransactionWindow, NewStore(-3).Window())
	assert.Equal(t, 10, NewStore(10).Window())
}

func TestStore_Empty(t *testing.T) {
	s := NewStore(5)

	_, ok := s.Balance()
	assert.False(t, ok)
	assert.Empty(t, s.Transactions())
	assert.False(t, s.TransactionsLoaded())
	assert.NoError(t, s.LastError())
	assert.True(t, s.LastSuccess().IsZero())
}

func TestStore_SetTransactionsTruncatesToWindow(t *testing.T) {
	s := NewStore(3)
	var txns []Transaction
	for i := 0; i < 5; i++ {
		txns = append(txns, testTxn(fmt.Sprintf("tx%d", i), KindMining, "1"))
	}

	applied := s.setTransactions(s.Generation(), txns, time.Now())
	require.True(t, applied)

	got := s.Transactions()
	require.Len(t, got, 3)
	assert.Equal(t, "tx0", got[0].ID)
	assert.Equal(t, "tx2", got[2].ID)
	assert.True(t, s.TransactionsLoaded())
}

func TestStore_SetTransactionsEmptyIsLoaded(t *testing.T) {
	s := NewStore(3)

	require.True(t, s.setTransactions(s.Generation(), nil, time.Now()))

	assert.Empty(t, s.Transactions())
	assert.True(t, s.TransactionsLoaded())
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore(5)
	gen := s.Generation()
	s.setTransactions(gen, []Transaction{testTxn("tx1", KindMining, "1")}, time.Now())
	s.setBalance(gen, newBalance(decimal.NewFromInt(10), map[string]decimal.Decimal{
		"mined": decimal.NewFromInt(10),
	}), time.Now())

	txns := s.Transactions()
	txns[0].ID = "mutated"
	assert.Equal(t, "tx1", s.Transactions()[0].ID)

	b, ok := s.Balance()
	require.True(t, ok)
	b.Breakdown[0].Category = "mutated"
	b2, _ := s.Balance()
	assert.Equal(t, "mined", b2.Breakdown[0].Category)
}

func TestStore_StaleGenerationWritesDiscarded(t *testing.T) {
	s := NewStore(5)
	gen := s.Generation()

	s.Invalidate()

	assert.False(t, s.setBalance(gen, Balance{Total: decimal.NewFromInt(1)}, time.Now()))
	assert.False(t, s.setTransactions(gen, []Transaction{testTxn("tx1", KindMining, "1")}, time.Now()))
	assert.False(t, s.setResult(gen, nil, time.Now()))

	_, ok := s.Balance()
	assert.False(t, ok)
	assert.Empty(t, s.Transactions())
	assert.True(t, s.LastSuccess().IsZero())
}

func TestStore_SetResult(t *testing.T) {
	s := NewStore(5)
	gen := s.Generation()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, s.setResult(gen, nil, at))
	assert.NoError(t, s.LastError())
	assert.Equal(t, at, s.LastSuccess())

	boom := errors.New("boom")
	require.True(t, s.setResult(gen, boom, at.Add(time.Minute)))
	assert.ErrorIs(t, s.LastError(), boom)
	assert.Equal(t, at, s.LastSuccess(), "failure must not move last success")

	require.True(t, s.setResult(gen, nil, at.Add(2*time.Minute)))
	assert.NoError(t, s.LastError())
}

func TestStore_InvalidateClearsEverything(t *testing.T) {
	s := NewStore(5)
	gen := s.Generation()
	s.setBalance(gen, Balance{Total: decimal.NewFromInt(1)}, time.Now())
	s.setTransactions(gen, []Transaction{testTxn("tx1", KindMining, "1")}, time.Now())
	s.setResult(gen, errors.New("boom"), time.Now())

	s.Invalidate()

	_, ok := s.Balance()
	assert.False(t, ok)
	assert.Empty(t, s.Transactions())
	assert.False(t, s.TransactionsLoaded())
	assert.NoError(t, s.LastError())
	assert.Equal(t, gen+1, s.Generation())
}

func TestStore_Lookup(t *testing.T) {
	s := NewStore(5)
	s.setTransactions(s.Generation(), []Transaction{
		testTxn("tx1", KindMining, "1"),
		testTxn("tx2", KindMining, "2"),
	}, time.Now())

	txn, ok := s.lookup("tx2")
	require.True(t, ok)
	assert.Equal(t, "tx2", txn.ID)

	_, ok = s.lookup("missing")
	assert.False(t, ok)
}

func TestStore_DebugDump(t *testing.T) {
	s := NewStore(5)
	gen := s.Generation()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.setBalance(gen, Balance{Total: decimal.NewFromInt(7)}, at)
	s.setTransactions(gen, []Transaction{testTxn("tx1", KindMining, "7")}, at)
	s.setResult(gen, errors.New("transactions unavailable"), at)

	snap := s.DebugDump()

	require.NotNil(t, snap.Balance)
	assert.True(t, snap.Balance.Total.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, at, snap.BalanceUpdatedAt)
	assert.Len(t, snap.Transactions, 1)
	assert.True(t, snap.TransactionsLoaded)
	assert.Equal(t, "transactions unavailable", snap.LastError)
	assert.Equal(t, gen, snap.Generation)

	// dumping twice yields the same state
	assert.Equal(t, snap, s.DebugDump())
}
