package store

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

var logger = logrus.WithField("component", "store")

var placeHolder = []byte("0")

type badgerStore struct {
	*badger.DB
}

// NewBadger opens the chain store at the given path
func NewBadger(path string) (Store, error) {
	dbpath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err = utils.AccessCheck(dbpath); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbpath)
	opts = opts.WithLogger(nil)
	opts = opts.WithValueLogFileSize(512 << 20)
	opts = opts.WithMaxTableSize(32 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, wrapError(err)
	}

	return &badgerStore{DB: db}, nil
}

func (b *badgerStore) Close() {
	b.DB.Close()
}

func (b *badgerStore) PutTransaction(t *tx.Transaction, timestamp time.Time) error {
	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}

	wf := func(txn *badger.Txn) error {
		if err := txn.Set(getTxKey(t.Address), t.Marshal()); err != nil {
			return err
		}

		// the chain genesis is inherited from the previous address,
		// or the previous address opens a new chain
		genesis, err := getValue(txn, getGenesisKey(prevAddress))
		if err == badger.ErrKeyNotFound {
			genesis = prevAddress
			if err := txn.Set(getFirstKey(genesis), t.Address); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		ts := timestamp.Unix()
		if err := txn.Set(getGenesisKey(t.Address), genesis); err != nil {
			return err
		}
		if err := txn.Set(getLastKey(genesis), packRef(t.Address, ts)); err != nil {
			return err
		}
		if err := txn.Set(getHistoryKey(genesis, ts), t.Address); err != nil {
			return err
		}
		if err := txn.Set(getTypeLastKey(t.Type), packRef(t.Address, ts)); err != nil {
			return err
		}

		length := uint64(0)
		if raw, err := getValue(txn, getLengthKey(genesis)); err == nil {
			length = uint64(bytets(raw))
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(getLengthKey(genesis), tsbyte(int64(length+1))); err != nil {
			return err
		}

		if t.Type == tx.TypeCodeApproval && len(t.Data.Recipients) == 1 {
			// approvals are indexed under the first public key of the approver chain
			signer := t.PreviousPublicKey
			firstAddr, err := getValue(txn, getFirstKey(genesis))
			if err != nil {
				return err
			}
			if !bytes.Equal(firstAddr, t.Address) {
				raw, err := getValue(txn, getTxKey(firstAddr))
				if err != nil {
					return err
				}
				first, err := tx.Unmarshal(bytes.NewReader(raw))
				if err != nil {
					return err
				}
				signer = first.PreviousPublicKey
			}
			key := getApprovalKey(t.Data.Recipients[0], signer.Marshal())
			if err := txn.Set(key, placeHolder); err != nil {
				return err
			}
		}

		return nil
	}

	return wrapError(b.Update(wf))
}

func (b *badgerStore) GetTransaction(address []byte) (*tx.Transaction, error) {
	var result *tx.Transaction

	rf := func(txn *badger.Txn) error {
		raw, err := getValue(txn, getTxKey(address))
		if err != nil {
			return err
		}
		result, err = tx.Unmarshal(bytes.NewReader(raw))
		return err
	}

	if err := b.View(rf); err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) TransactionExists(address []byte) (bool, error) {
	rf := func(txn *badger.Txn) error {
		_, err := txn.Get(getTxKey(address))
		return err
	}

	err := b.View(rf)
	if err == nil {
		return true, nil
	}
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return false, wrapError(err)
}

func (b *badgerStore) LastChainAddress(address []byte) (*ChainRef, error) {
	var result *ChainRef

	rf := func(txn *badger.Txn) error {
		genesis, err := b.resolveGenesis(txn, address)
		if err != nil {
			return err
		}

		raw, err := getValue(txn, getLastKey(genesis))
		if err != nil {
			return err
		}

		addr, ts := unpackRef(raw)
		result = &ChainRef{Address: addr, Timestamp: time.Unix(ts, 0).UTC()}
		return nil
	}

	err := b.View(rf)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) LastChainAddressBefore(address []byte, before time.Time) (*ChainRef, error) {
	var result *ChainRef

	rf := func(txn *badger.Txn) error {
		genesis, err := b.resolveGenesis(txn, address)
		if err != nil {
			return err
		}

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := getHistoryPrefix(genesis)
		// seek to the last entry at or before the bound
		it.Seek(getHistoryKey(genesis, before.Unix()))
		if !it.ValidForPrefix(prefix) {
			return badger.ErrKeyNotFound
		}

		item := it.Item()
		ts := bytets(item.Key()[len(prefix):])
		return item.Value(func(v []byte) error {
			addr := make([]byte, len(v))
			copy(addr, v)
			result = &ChainRef{Address: addr, Timestamp: time.Unix(ts, 0).UTC()}
			return nil
		})
	}

	err := b.View(rf)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) TransactionChain(address []byte, after time.Time) ([]*tx.Transaction, error) {
	var result []*tx.Transaction

	rf := func(txn *badger.Txn) error {
		genesis, err := b.resolveGenesis(txn, address)
		if err != nil {
			return err
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := getHistoryPrefix(genesis)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			ts := bytets(item.Key()[len(prefix):])
			if !after.IsZero() && ts <= after.Unix() {
				continue
			}

			var addr []byte
			if err := item.Value(func(v []byte) error {
				addr = append([]byte{}, v...)
				return nil
			}); err != nil {
				return err
			}

			raw, err := getValue(txn, getTxKey(addr))
			if err != nil {
				return err
			}
			t, err := tx.Unmarshal(bytes.NewReader(raw))
			if err != nil {
				return err
			}
			result = append(result, t)
		}
		return nil
	}

	if err := b.View(rf); err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) ChainLength(address []byte) (uint32, error) {
	var result uint32

	rf := func(txn *badger.Txn) error {
		genesis, err := b.resolveGenesis(txn, address)
		if err != nil {
			return err
		}

		raw, err := getValue(txn, getLengthKey(genesis))
		if err != nil {
			return err
		}
		result = uint32(bytets(raw))
		return nil
	}

	err := b.View(rf)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) FirstTransaction(address []byte) (*tx.Transaction, error) {
	var result *tx.Transaction

	rf := func(txn *badger.Txn) error {
		genesis, err := b.resolveGenesis(txn, address)
		if err != nil {
			return err
		}

		firstAddr, err := getValue(txn, getFirstKey(genesis))
		if err != nil {
			return err
		}

		raw, err := getValue(txn, getTxKey(firstAddr))
		if err != nil {
			return err
		}
		result, err = tx.Unmarshal(bytes.NewReader(raw))
		return err
	}

	if err := b.View(rf); err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) FirstPublicKey(address []byte) (*crypto.PublicKey, error) {
	first, err := b.FirstTransaction(address)
	if err != nil {
		return nil, err
	}
	return first.PreviousPublicKey, nil
}

func (b *badgerStore) LastAddressOfType(txType tx.Type) (*ChainRef, error) {
	var result *ChainRef

	rf := func(txn *badger.Txn) error {
		raw, err := getValue(txn, getTypeLastKey(txType))
		if err != nil {
			return err
		}
		addr, ts := unpackRef(raw)
		result = &ChainRef{Address: addr, Timestamp: time.Unix(ts, 0).UTC()}
		return nil
	}

	err := b.View(rf)
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) CodeProposalSignedBy(proposal []byte, signer *crypto.PublicKey) (bool, error) {
	rf := func(txn *badger.Txn) error {
		_, err := txn.Get(getApprovalKey(proposal, signer.Marshal()))
		return err
	}

	err := b.View(rf)
	if err == nil {
		return true, nil
	}
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	return false, wrapError(err)
}

func (b *badgerStore) LatestBurnedFees() (uint64, error) {
	var result uint64

	rf := func(txn *badger.Txn) error {
		raw, err := getValue(txn, mBurnedFees)
		if err != nil {
			return err
		}
		result = uint64(bytets(raw))
		return nil
	}

	err := b.View(rf)
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, wrapError(err)
	}
	return result, nil
}

func (b *badgerStore) SetLatestBurnedFees(amount uint64) error {
	wf := func(txn *badger.Txn) error {
		return txn.Set(mBurnedFees, tsbyte(int64(amount)))
	}
	return wrapError(b.Update(wf))
}

// resolveGenesis maps any chain address to its genesis; an address with
// no recorded ancestry is its own genesis candidate
func (b *badgerStore) resolveGenesis(txn *badger.Txn, address []byte) ([]byte, error) {
	genesis, err := getValue(txn, getGenesisKey(address))
	if err == badger.ErrKeyNotFound {
		return address, nil
	}
	if err != nil {
		return nil, err
	}
	return genesis, nil
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}

	var result []byte
	err = item.Value(func(v []byte) error {
		result = append([]byte{}, v...)
		return nil
	})
	return result, err
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	logger.Warnf("chain store error:%v", err)
	return fmt.Errorf("chain store:%v", err)
}
