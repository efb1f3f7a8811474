/*
ReplicateTransaction
+------+-------------+-------+
| Tag  | Transaction | Roles |
+------+-------------+-------+
Roles       1: bit7 chain, bit6 IO, bit5 beacon, bit4 ack storage,

	low bits zero padding

AcknowledgeStorage
+------+----------------------+
| Tag  |       Address        |
+------+----------------------+
*/
package message

import (
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

const (
	roleChainBit  = 1 << 7
	roleIOBit     = 1 << 6
	roleBeaconBit = 1 << 5
	ackStorageBit = 1 << 4
)

// ReplicateTransaction ships a validated transaction to a storage node
// together with the roles it should store it under
type ReplicateTransaction struct {
	Transaction *tx.Transaction
	ChainRole   bool
	IORole      bool
	BeaconRole  bool
	AckStorage  bool
}

func unmarshalReplicateTransaction(r io.Reader) (Message, error) {
	t, err := tx.Unmarshal(r)
	if err != nil {
		return nil, err
	}

	flags, err := readUint8(r)
	if err != nil {
		return nil, err
	}

	return &ReplicateTransaction{
		Transaction: t,
		ChainRole:   flags&roleChainBit != 0,
		IORole:      flags&roleIOBit != 0,
		BeaconRole:  flags&roleBeaconBit != 0,
		AckStorage:  flags&ackStorageBit != 0,
	}, nil
}

func (m *ReplicateTransaction) Tag() Tag { return TagReplicateTransaction }

func (m *ReplicateTransaction) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Transaction.Marshal())

	var flags uint8
	if m.ChainRole {
		flags |= roleChainBit
	}
	if m.IORole {
		flags |= roleIOBit
	}
	if m.BeaconRole {
		flags |= roleBeaconBit
	}
	if m.AckStorage {
		flags |= ackStorageBit
	}
	buf.WriteByte(flags)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *ReplicateTransaction) String() string {
	return fmt.Sprintf("ReplicateTransaction %v chain=%v io=%v beacon=%v ack=%v",
		m.Transaction, m.ChainRole, m.IORole, m.BeaconRole, m.AckStorage)
}

// AcknowledgeStorage confirms a replicated transaction reached disk
type AcknowledgeStorage struct {
	Address []byte
}

func unmarshalAcknowledgeStorage(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &AcknowledgeStorage{Address: address}, nil
}

func (m *AcknowledgeStorage) Tag() Tag { return TagAcknowledgeStorage }

func (m *AcknowledgeStorage) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *AcknowledgeStorage) String() string {
	return fmt.Sprintf("AcknowledgeStorage %s", utils.ToHex(m.Address))
}
