/*
NewTransaction
+------+----------------------+
| Tag  |     Transaction      |
+------+----------------------+

StartMining
+------+-------------+------------------+
| Tag  | Transaction | WelcomeNodeKey   |
+------+--------+----+------------------+
| KeysN | ValidationNodeKeys            |
+-------+-------------------------------+
KeysN       1

AddMiningContext
+------+-----------+--------------------+
| Tag  |  Address  | ValidationNodeKey  |
+------+--------+--+--------------------+
| KeysN | PreviousStorageNodeKeys       |
+-------+-------------------------------+
| ValidationNodesView:(View)            |
+---------------------------------------+
| ChainStorageNodesView:(View)          |
+---------------------------------------+
| BeaconStorageNodesView:(View)         |
+---------------------------------------+
KeysN       1

CrossValidate
+------+-----------+-------------------+
| Tag  |  Address  | (ValidationStamp) |
+------+------+----+----+--------------+
| Rows | Cols | ChainTree | BeaconTree |
+------+------+-----------+------------+
| IOTree                               |
+--------------------------------------+
Rows        1
Cols        1
Each tree   ceil(Rows*Cols/8) bytes, row-major, MSB first

CrossValidationDone
+------+-----------+------------------------+
| Tag  |  Address  | (CrossValidationStamp) |
+------+-----------+------------------------+
*/
package message

import (
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

// NewTransaction submits a pending transaction for admission and mining
type NewTransaction struct {
	Transaction *tx.Transaction
}

func unmarshalNewTransaction(r io.Reader) (Message, error) {
	t, err := tx.Unmarshal(r)
	if err != nil {
		return nil, err
	}
	return &NewTransaction{Transaction: t}, nil
}

func (m *NewTransaction) Tag() Tag { return TagNewTransaction }

func (m *NewTransaction) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Transaction.Marshal())
}

func (m *NewTransaction) String() string {
	return fmt.Sprintf("NewTransaction %v", m.Transaction)
}

// StartMining hands a pending transaction to the elected validation nodes
type StartMining struct {
	Transaction        *tx.Transaction
	WelcomeNodeKey     *crypto.PublicKey
	ValidationNodeKeys []*crypto.PublicKey
}

func unmarshalStartMining(r io.Reader) (Message, error) {
	result := &StartMining{}
	var err error

	if result.Transaction, err = tx.Unmarshal(r); err != nil {
		return nil, err
	}
	if result.WelcomeNodeKey, err = crypto.ReadPublicKey(r); err != nil {
		return nil, err
	}

	keysN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < keysN; i++ {
		key, err := crypto.ReadPublicKey(r)
		if err != nil {
			return nil, err
		}
		result.ValidationNodeKeys = append(result.ValidationNodeKeys, key)
	}
	return result, nil
}

func (m *StartMining) Tag() Tag { return TagStartMining }

func (m *StartMining) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Transaction.Marshal())
	buf.Write(m.WelcomeNodeKey.Marshal())
	buf.WriteByte(uint8(len(m.ValidationNodeKeys)))
	for _, key := range m.ValidationNodeKeys {
		buf.Write(key.Marshal())
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *StartMining) String() string {
	return fmt.Sprintf("StartMining %v with %d validation nodes",
		m.Transaction, len(m.ValidationNodeKeys))
}

// AddMiningContext shares a validator's view of the election with the
// other validation nodes
type AddMiningContext struct {
	Address                 []byte
	ValidationNodeKey       *crypto.PublicKey
	PreviousStorageNodeKeys []*crypto.PublicKey
	ValidationNodesView     View
	ChainStorageNodesView   View
	BeaconStorageNodesView  View
}

func unmarshalAddMiningContext(r io.Reader) (Message, error) {
	result := &AddMiningContext{}
	var err error

	if result.Address, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.ValidationNodeKey, err = crypto.ReadPublicKey(r); err != nil {
		return nil, err
	}

	keysN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < keysN; i++ {
		key, err := crypto.ReadPublicKey(r)
		if err != nil {
			return nil, err
		}
		result.PreviousStorageNodeKeys = append(result.PreviousStorageNodeKeys, key)
	}

	if result.ValidationNodesView, err = readView(r); err != nil {
		return nil, err
	}
	if result.ChainStorageNodesView, err = readView(r); err != nil {
		return nil, err
	}
	if result.BeaconStorageNodesView, err = readView(r); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *AddMiningContext) Tag() Tag { return TagAddMiningContext }

func (m *AddMiningContext) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	buf.Write(m.ValidationNodeKey.Marshal())
	buf.WriteByte(uint8(len(m.PreviousStorageNodeKeys)))
	for _, key := range m.PreviousStorageNodeKeys {
		buf.Write(key.Marshal())
	}
	writeView(buf, m.ValidationNodesView)
	writeView(buf, m.ChainStorageNodesView)
	writeView(buf, m.BeaconStorageNodesView)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *AddMiningContext) String() string {
	return fmt.Sprintf("AddMiningContext %s from %s",
		utils.ToHex(m.Address), m.ValidationNodeKey)
}

// CrossValidate asks the other validators to check a stamp; the three
// replication trees share one shape
type CrossValidate struct {
	Address    []byte
	Stamp      *ValidationStamp
	ChainTree  Matrix
	BeaconTree Matrix
	IOTree     Matrix
}

// NewCrossValidate builds the frame, rejecting trees of uneven shape
func NewCrossValidate(address []byte, stamp *ValidationStamp, chain, beacon, ioTree Matrix) (*CrossValidate, error) {
	rows, cols := len(chain), 0
	if rows > 0 {
		cols = len(chain[0])
	}
	if len(beacon) != rows || len(ioTree) != rows {
		return nil, fmt.Errorf("%w: replication trees differ in shape", ErrMalformed)
	}
	for _, m := range []Matrix{chain, beacon, ioTree} {
		if err := m.checkShape(cols); err != nil {
			return nil, err
		}
	}

	return &CrossValidate{
		Address:    address,
		Stamp:      stamp,
		ChainTree:  chain,
		BeaconTree: beacon,
		IOTree:     ioTree,
	}, nil
}

func unmarshalCrossValidate(r io.Reader) (Message, error) {
	result := &CrossValidate{}
	var err error

	if result.Address, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.Stamp, err = unmarshalValidationStamp(r); err != nil {
		return nil, err
	}

	rows, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	cols, err := readUint8(r)
	if err != nil {
		return nil, err
	}

	if result.ChainTree, err = readMatrix(r, int(rows), int(cols)); err != nil {
		return nil, err
	}
	if result.BeaconTree, err = readMatrix(r, int(rows), int(cols)); err != nil {
		return nil, err
	}
	if result.IOTree, err = readMatrix(r, int(rows), int(cols)); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *CrossValidate) Tag() Tag { return TagCrossValidate }

func (m *CrossValidate) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	m.Stamp.marshalTo(buf)

	rows, cols := len(m.ChainTree), 0
	if rows > 0 {
		cols = len(m.ChainTree[0])
	}
	buf.WriteByte(uint8(rows))
	buf.WriteByte(uint8(cols))
	writeMatrix(buf, m.ChainTree)
	writeMatrix(buf, m.BeaconTree)
	writeMatrix(buf, m.IOTree)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *CrossValidate) String() string {
	return fmt.Sprintf("CrossValidate %s over %d replication rows",
		utils.ToHex(m.Address), len(m.ChainTree))
}

// CrossValidationDone returns a validator's countersignature
type CrossValidationDone struct {
	Address []byte
	Stamp   *CrossValidationStamp
}

func unmarshalCrossValidationDone(r io.Reader) (Message, error) {
	result := &CrossValidationDone{}
	var err error

	if result.Address, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.Stamp, err = unmarshalCrossValidationStamp(r); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *CrossValidationDone) Tag() Tag { return TagCrossValidationDone }

func (m *CrossValidationDone) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	m.Stamp.marshalTo(buf)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *CrossValidationDone) String() string {
	return fmt.Sprintf("CrossValidationDone %s by %s",
		utils.ToHex(m.Address), m.Stamp.NodePublicKey)
}
