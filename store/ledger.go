package store

import (
	"sync"
	"time"

	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

// MemLedger is a minimal account view fed from replicated transactions.
// The authoritative ledger lives in the replication pipeline; this view
// only backs the balance and input queries of the wire protocol.
type MemLedger struct {
	mutex  sync.RWMutex
	uco    map[string]uint64
	tokens map[string]map[string]uint64
	inputs map[string][]LedgerInput
}

// LedgerInput is one fund arrival on an address
type LedgerInput struct {
	From         []byte
	Amount       uint64
	TokenAddress []byte
	TokenID      uint32
	Timestamp    time.Time
	Spent        bool
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		uco:    make(map[string]uint64),
		tokens: make(map[string]map[string]uint64),
		inputs: make(map[string][]LedgerInput),
	}
}

// ApplyTransaction credits the movements of a replicated transaction
func (l *MemLedger) ApplyTransaction(t *tx.Transaction, timestamp time.Time) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	for _, transfer := range t.Data.Ledger.UCO {
		to := utils.ToHex(transfer.To)
		l.uco[to] += transfer.Amount
		l.inputs[to] = append(l.inputs[to], LedgerInput{
			From:      t.Address,
			Amount:    transfer.Amount,
			Timestamp: timestamp,
		})
	}

	for _, transfer := range t.Data.Ledger.Token {
		to := utils.ToHex(transfer.To)
		token := utils.ToHex(transfer.TokenAddress)
		if l.tokens[to] == nil {
			l.tokens[to] = make(map[string]uint64)
		}
		l.tokens[to][token] += transfer.Amount
		l.inputs[to] = append(l.inputs[to], LedgerInput{
			From:         t.Address,
			Amount:       transfer.Amount,
			TokenAddress: append([]byte{}, transfer.TokenAddress...),
			TokenID:      transfer.TokenID,
			Timestamp:    timestamp,
		})
	}
}

// Balance returns the UCO sub-units and the per-token sub-units of an address
func (l *MemLedger) Balance(address []byte) (uint64, map[string]uint64) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	key := utils.ToHex(address)
	tokens := make(map[string]uint64, len(l.tokens[key]))
	for token, amount := range l.tokens[key] {
		tokens[token] = amount
	}
	return l.uco[key], tokens
}

// Inputs returns the recorded fund arrivals of an address
func (l *MemLedger) Inputs(address []byte) []LedgerInput {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	src := l.inputs[utils.ToHex(address)]
	result := make([]LedgerInput, len(src))
	copy(result, src)
	return result
}
