package store

import (
	"errors"
	"time"

	"github.com/kgricour/archethic-node/crypto"
	tx "github.com/kgricour/archethic-node/transaction"
)

// ErrNotFound reports a lookup that matched no stored record
var ErrNotFound = errors.New("not found")

// ChainRef points at the latest transaction of a chain
type ChainRef struct {
	Address   []byte
	Timestamp time.Time
}

// Store is the chain storage consumed by the dispatcher and the
// pending transaction validator
type Store interface {
	// PutTransaction indexes a replicated transaction under its chain
	PutTransaction(t *tx.Transaction, timestamp time.Time) error

	// GetTransaction returns a stored transaction, ErrNotFound otherwise
	GetTransaction(address []byte) (*tx.Transaction, error)

	TransactionExists(address []byte) (bool, error)

	// LastChainAddress resolves the latest address of the chain any of
	// whose addresses is given; nil when the chain is unknown
	LastChainAddress(address []byte) (*ChainRef, error)

	// LastChainAddressBefore is LastChainAddress bounded by a point in time
	LastChainAddressBefore(address []byte, before time.Time) (*ChainRef, error)

	// TransactionChain returns the chain of an address, oldest first,
	// restricted to the transactions stored after the given time
	TransactionChain(address []byte, after time.Time) ([]*tx.Transaction, error)

	ChainLength(address []byte) (uint32, error)

	// FirstTransaction returns the first transaction of the chain
	FirstTransaction(address []byte) (*tx.Transaction, error)

	// FirstPublicKey returns the key that opened the chain
	FirstPublicKey(address []byte) (*crypto.PublicKey, error)

	// LastAddressOfType tracks the latest stored transaction per type,
	// used by the scheduler window checks; nil when none was stored
	LastAddressOfType(txType tx.Type) (*ChainRef, error)

	// CodeProposalSignedBy reports whether the holder of the given first
	// public key already emitted a code approval for the proposal
	CodeProposalSignedBy(proposal []byte, signer *crypto.PublicKey) (bool, error)

	// LatestBurnedFees is the fee total burned since the last reward mint
	LatestBurnedFees() (uint64, error)
	SetLatestBurnedFees(amount uint64) error

	Close()
}
