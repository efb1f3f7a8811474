/*
GetTransaction / GetUnspentOutputs / GetLastTransaction / GetBalance /
GetTransactionInputs / GetTransactionChainLength / GetFirstPublicKey /
GetTransactionSummary
+------+----------------------+
| Tag  |       Address        |
+------+----------------------+

GetTransactionChain
+------+-----------+----------+
| Tag  |  Address  | (After)  |
+------+-----------+----------+
After       4, optional; presence inferred from the remaining bytes

GetLastTransactionAddress
+------+-----------+-----------+
| Tag  |  Address  | Timestamp |
+------+-----------+-----------+

NotifyLastTransactionAddress
+------+-----------+-----------+-----------+
| Tag  |  Address  | Previous  | Timestamp |
+------+-----------+-----------+-----------+
Timestamp   4
*/
package message

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

// GetTransaction asks a storage node for one transaction
type GetTransaction struct {
	Address []byte
}

func unmarshalGetTransaction(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetTransaction{Address: address}, nil
}

func (m *GetTransaction) Tag() Tag { return TagGetTransaction }

func (m *GetTransaction) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetTransaction) String() string {
	return fmt.Sprintf("GetTransaction %s", utils.ToHex(m.Address))
}

// GetTransactionChain asks for the transaction chain of an address;
// After restricts the chain to the transactions issued after it
type GetTransactionChain struct {
	Address  []byte
	After    uint32
	HasAfter bool
}

func unmarshalGetTransactionChain(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}

	result := &GetTransactionChain{Address: address}

	// the short framing omits the timestamp; the remaining bytes of
	// the frame decide which framing was sent
	if remaining(r) > 0 {
		if result.After, err = readUint32(r); err != nil {
			return nil, err
		}
		result.HasAfter = true
	}
	return result, nil
}

func (m *GetTransactionChain) Tag() Tag { return TagGetTransactionChain }

func (m *GetTransactionChain) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	if m.HasAfter {
		binary.Write(buf, binary.BigEndian, m.After)
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *GetTransactionChain) String() string {
	if m.HasAfter {
		return fmt.Sprintf("GetTransactionChain %s after %s",
			utils.ToHex(m.Address), utils.TimeToString(int64(m.After)))
	}
	return fmt.Sprintf("GetTransactionChain %s", utils.ToHex(m.Address))
}

// GetUnspentOutputs asks for the unspent outputs of an address
type GetUnspentOutputs struct {
	Address []byte
}

func unmarshalGetUnspentOutputs(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetUnspentOutputs{Address: address}, nil
}

func (m *GetUnspentOutputs) Tag() Tag { return TagGetUnspentOutputs }

func (m *GetUnspentOutputs) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetUnspentOutputs) String() string {
	return fmt.Sprintf("GetUnspentOutputs %s", utils.ToHex(m.Address))
}

// GetLastTransaction asks for the latest transaction of a chain
type GetLastTransaction struct {
	Address []byte
}

func unmarshalGetLastTransaction(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetLastTransaction{Address: address}, nil
}

func (m *GetLastTransaction) Tag() Tag { return TagGetLastTransaction }

func (m *GetLastTransaction) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetLastTransaction) String() string {
	return fmt.Sprintf("GetLastTransaction %s", utils.ToHex(m.Address))
}

// GetBalance asks for the UCO and token balances of an address
type GetBalance struct {
	Address []byte
}

func unmarshalGetBalance(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetBalance{Address: address}, nil
}

func (m *GetBalance) Tag() Tag { return TagGetBalance }

func (m *GetBalance) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetBalance) String() string {
	return fmt.Sprintf("GetBalance %s", utils.ToHex(m.Address))
}

// GetTransactionInputs asks for the inputs spent into an address
type GetTransactionInputs struct {
	Address []byte
}

func unmarshalGetTransactionInputs(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetTransactionInputs{Address: address}, nil
}

func (m *GetTransactionInputs) Tag() Tag { return TagGetTransactionInputs }

func (m *GetTransactionInputs) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetTransactionInputs) String() string {
	return fmt.Sprintf("GetTransactionInputs %s", utils.ToHex(m.Address))
}

// GetTransactionChainLength asks for the number of transactions in a chain
type GetTransactionChainLength struct {
	Address []byte
}

func unmarshalGetTransactionChainLength(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetTransactionChainLength{Address: address}, nil
}

func (m *GetTransactionChainLength) Tag() Tag { return TagGetTransactionChainLength }

func (m *GetTransactionChainLength) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetTransactionChainLength) String() string {
	return fmt.Sprintf("GetTransactionChainLength %s", utils.ToHex(m.Address))
}

// GetFirstPublicKey asks for the first public key of a chain
type GetFirstPublicKey struct {
	Address []byte
}

func unmarshalGetFirstPublicKey(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetFirstPublicKey{Address: address}, nil
}

func (m *GetFirstPublicKey) Tag() Tag { return TagGetFirstPublicKey }

func (m *GetFirstPublicKey) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetFirstPublicKey) String() string {
	return fmt.Sprintf("GetFirstPublicKey %s", utils.ToHex(m.Address))
}

// GetLastTransactionAddress asks for the last chain address known at
// the given time
type GetLastTransactionAddress struct {
	Address   []byte
	Timestamp uint32
}

func unmarshalGetLastTransactionAddress(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	timestamp, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &GetLastTransactionAddress{Address: address, Timestamp: timestamp}, nil
}

func (m *GetLastTransactionAddress) Tag() Tag { return TagGetLastTransactionAddress }

func (m *GetLastTransactionAddress) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	binary.Write(buf, binary.BigEndian, m.Timestamp)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *GetLastTransactionAddress) String() string {
	return fmt.Sprintf("GetLastTransactionAddress %s at %s",
		utils.ToHex(m.Address), utils.TimeToString(int64(m.Timestamp)))
}

// NotifyLastTransactionAddress tells a storage node about a newer last
// address of a chain
type NotifyLastTransactionAddress struct {
	Address         []byte
	PreviousAddress []byte
	Timestamp       uint32
}

func unmarshalNotifyLastTransactionAddress(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	previous, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	timestamp, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &NotifyLastTransactionAddress{
		Address:         address,
		PreviousAddress: previous,
		Timestamp:       timestamp,
	}, nil
}

func (m *NotifyLastTransactionAddress) Tag() Tag { return TagNotifyLastTransactionAddress }

func (m *NotifyLastTransactionAddress) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	buf.Write(m.PreviousAddress)
	binary.Write(buf, binary.BigEndian, m.Timestamp)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *NotifyLastTransactionAddress) String() string {
	return fmt.Sprintf("NotifyLastTransactionAddress %s previous %s",
		utils.ToHex(m.Address), utils.ToHex(m.PreviousAddress))
}

// GetTransactionSummary asks for the summary of a transaction
type GetTransactionSummary struct {
	Address []byte
}

func unmarshalGetTransactionSummary(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &GetTransactionSummary{Address: address}, nil
}

func (m *GetTransactionSummary) Tag() Tag { return TagGetTransactionSummary }

func (m *GetTransactionSummary) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *GetTransactionSummary) String() string {
	return fmt.Sprintf("GetTransactionSummary %s", utils.ToHex(m.Address))
}

// remaining reports how many unread bytes are left in the frame buffer
func remaining(r io.Reader) int {
	if br, ok := r.(*bytes.Reader); ok {
		return br.Len()
	}
	return 0
}
