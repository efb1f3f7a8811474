/*
Transaction
+------+----------------------+
| Tag  |     Transaction      |
+------+----------------------+
The payload is the canonical transaction, untouched.

TransactionList
+------+--------+-------------+
| Tag  | TxsN   | Txs         |
+------+--------+-------------+
TxsN        4

Balance
+------+--------+----------------------------+
| Tag  | UCO    | TokensN | Tokens:(Address, |
|      |        |         |  Amount)         |
+------+--------+---------+------------------+
UCO         8, IEEE-754 binary64
TokensN     1
Amount      8, IEEE-754 binary64

Amounts travel as binary64 but are held as integer counts of the
10^-8 sub-unit; the conversion is exact for any sub-unit amount
up to 2^53.

UnspentOutputList
+------+--------+--------------+
| Tag  | UtxosN | Utxos        |
+------+--------+--------------+
UtxosN      4

UnspentOutput
+--------+--------+------+
| From   | Amount | Type |
+--------+--------+------+
Type 1 adds: TokenAddress (tagged hash), TokenID 4

TransactionInputList
+------+---------+--------------+
| Tag  | InputsN | Inputs       |
+------+---------+--------------+
InputsN     4

TransactionInput is an UnspentOutput followed by:
Spent       1
Timestamp   4

TransactionSummary
+------+-----------+-----------+------+------+
| Tag  |  Address  | Timestamp | Type | Fee  |
+------+--------+--+-----------+------+------+
| MovsN | MovementsAddresses              |
+-------+---------------------------------+
Timestamp   8
Fee         8
MovsN       4
*/
package message

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/kgricour/archethic-node/crypto"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

// subUnit is the number of amount sub-units per UCO or token unit
const subUnit = 100_000_000

// Transaction carries one full transaction; the frame body is exactly
// the canonical transaction bytes
type Transaction struct {
	Transaction *tx.Transaction
}

func unmarshalTransaction(r io.Reader) (Message, error) {
	t, err := tx.Unmarshal(r)
	if err != nil {
		return nil, err
	}
	return &Transaction{Transaction: t}, nil
}

func (m *Transaction) Tag() Tag { return TagTransaction }

func (m *Transaction) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Transaction.Marshal())
}

func (m *Transaction) String() string {
	return fmt.Sprintf("Transaction %v", m.Transaction)
}

// TransactionList carries a chain segment
type TransactionList struct {
	Transactions []*tx.Transaction
}

func unmarshalTransactionList(r io.Reader) (Message, error) {
	txsN, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	result := &TransactionList{}
	for i := uint32(0); i < txsN; i++ {
		t, err := tx.Unmarshal(r)
		if err != nil {
			return nil, err
		}
		result.Transactions = append(result.Transactions, t)
	}
	return result, nil
}

func (m *TransactionList) Tag() Tag { return TagTransactionList }

func (m *TransactionList) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, uint32(len(m.Transactions)))
	for _, t := range m.Transactions {
		buf.Write(t.Marshal())
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *TransactionList) String() string {
	return fmt.Sprintf("TransactionList of %d transactions", len(m.Transactions))
}

// TokenBalance is the balance of one token, in sub-units
type TokenBalance struct {
	Address []byte
	Amount  uint64
}

// Balance carries the UCO and token balances of an address, in sub-units
type Balance struct {
	UCO    uint64
	Tokens []TokenBalance
}

func unmarshalBalance(r io.Reader) (Message, error) {
	result := &Balance{}

	uco, err := readAmount(r)
	if err != nil {
		return nil, err
	}
	result.UCO = uco

	tokensN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < tokensN; i++ {
		var balance TokenBalance
		if balance.Address, err = crypto.ReadHash(r); err != nil {
			return nil, err
		}
		if balance.Amount, err = readAmount(r); err != nil {
			return nil, err
		}
		result.Tokens = append(result.Tokens, balance)
	}
	return result, nil
}

func (m *Balance) Tag() Tag { return TagBalance }

func (m *Balance) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	writeAmount(buf, m.UCO)
	buf.WriteByte(uint8(len(m.Tokens)))
	for _, balance := range m.Tokens {
		buf.Write(balance.Address)
		writeAmount(buf, balance.Amount)
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *Balance) String() string {
	return fmt.Sprintf("Balance %d UCO sub-units, %d tokens", m.UCO, len(m.Tokens))
}

// UTXOType tags an unspent output
type UTXOType = uint8

const (
	UTXOUco   = UTXOType(0)
	UTXOToken = UTXOType(1)
)

// UnspentOutput is one unspent output of an address
type UnspentOutput struct {
	From         []byte
	Amount       uint64
	Type         UTXOType
	TokenAddress []byte
	TokenID      uint32
}

func (u *UnspentOutput) marshalTo(buf io.Writer) {
	buf.Write(u.From)
	binary.Write(buf, binary.BigEndian, u.Amount)
	buf.Write([]byte{u.Type})
	if u.Type == UTXOToken {
		buf.Write(u.TokenAddress)
		binary.Write(buf, binary.BigEndian, u.TokenID)
	}
}

func unmarshalUnspentOutput(r io.Reader) (*UnspentOutput, error) {
	result := &UnspentOutput{}
	var err error

	if result.From, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.Amount, err = readUint64(r); err != nil {
		return nil, err
	}
	if result.Type, err = readUint8(r); err != nil {
		return nil, err
	}
	switch result.Type {
	case UTXOUco:
	case UTXOToken:
		if result.TokenAddress, err = crypto.ReadHash(r); err != nil {
			return nil, err
		}
		if result.TokenID, err = readUint32(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: utxo type %d", ErrMalformed, result.Type)
	}
	return result, nil
}

// UnspentOutputList carries the unspent outputs of an address
type UnspentOutputList struct {
	UnspentOutputs []*UnspentOutput
}

func unmarshalUnspentOutputList(r io.Reader) (Message, error) {
	utxosN, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	result := &UnspentOutputList{}
	for i := uint32(0); i < utxosN; i++ {
		utxo, err := unmarshalUnspentOutput(r)
		if err != nil {
			return nil, err
		}
		result.UnspentOutputs = append(result.UnspentOutputs, utxo)
	}
	return result, nil
}

func (m *UnspentOutputList) Tag() Tag { return TagUnspentOutputList }

func (m *UnspentOutputList) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, uint32(len(m.UnspentOutputs)))
	for _, utxo := range m.UnspentOutputs {
		utxo.marshalTo(buf)
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *UnspentOutputList) String() string {
	return fmt.Sprintf("UnspentOutputList of %d outputs", len(m.UnspentOutputs))
}

// TransactionInput is a spent or unspent input of an address
type TransactionInput struct {
	UnspentOutput
	Spent     bool
	Timestamp uint32
}

// TransactionInputList carries the inputs of an address
type TransactionInputList struct {
	Inputs []*TransactionInput
}

func unmarshalTransactionInputList(r io.Reader) (Message, error) {
	inputsN, err := readUint32(r)
	if err != nil {
		return nil, err
	}

	result := &TransactionInputList{}
	for i := uint32(0); i < inputsN; i++ {
		utxo, err := unmarshalUnspentOutput(r)
		if err != nil {
			return nil, err
		}

		input := &TransactionInput{UnspentOutput: *utxo}
		spent, err := readUint8(r)
		if err != nil {
			return nil, err
		}
		input.Spent = spent != 0
		if input.Timestamp, err = readUint32(r); err != nil {
			return nil, err
		}
		result.Inputs = append(result.Inputs, input)
	}
	return result, nil
}

func (m *TransactionInputList) Tag() Tag { return TagTransactionInputList }

func (m *TransactionInputList) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, uint32(len(m.Inputs)))
	for _, input := range m.Inputs {
		input.marshalTo(buf)
		if input.Spent {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		binary.Write(buf, binary.BigEndian, input.Timestamp)
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *TransactionInputList) String() string {
	return fmt.Sprintf("TransactionInputList of %d inputs", len(m.Inputs))
}

// TransactionSummary condenses a transaction for the beacon chains
type TransactionSummary struct {
	Address            []byte
	Timestamp          uint64
	Type               tx.Type
	Fee                uint64
	MovementsAddresses [][]byte
}

func unmarshalTransactionSummary(r io.Reader) (Message, error) {
	result := &TransactionSummary{}
	var err error

	if result.Address, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.Timestamp, err = readUint64(r); err != nil {
		return nil, err
	}
	if result.Type, err = readUint8(r); err != nil {
		return nil, err
	}
	if !tx.ValidType(result.Type) {
		return nil, fmt.Errorf("%w: transaction type %d", ErrMalformed, result.Type)
	}
	if result.Fee, err = readUint64(r); err != nil {
		return nil, err
	}

	movsN, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < movsN; i++ {
		address, err := crypto.ReadHash(r)
		if err != nil {
			return nil, err
		}
		result.MovementsAddresses = append(result.MovementsAddresses, address)
	}
	return result, nil
}

func (m *TransactionSummary) Tag() Tag { return TagTransactionSummary }

func (m *TransactionSummary) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.Address)
	binary.Write(buf, binary.BigEndian, m.Timestamp)
	buf.WriteByte(m.Type)
	binary.Write(buf, binary.BigEndian, m.Fee)
	binary.Write(buf, binary.BigEndian, uint32(len(m.MovementsAddresses)))
	for _, address := range m.MovementsAddresses {
		buf.Write(address)
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *TransactionSummary) String() string {
	return fmt.Sprintf("TransactionSummary %s %s fee %d",
		utils.ToHex(m.Address), tx.TypeName(m.Type), m.Fee)
}

// writeAmount writes a sub-unit amount as IEEE-754 binary64
func writeAmount(buf io.Writer, subUnits uint64) {
	binary.Write(buf, binary.BigEndian, float64(subUnits)/subUnit)
}

// readAmount reads a binary64 amount back into sub-units; the mapping
// is exact for any sub-unit count up to 2^53
func readAmount(r io.Reader) (uint64, error) {
	var f float64
	if err := binary.Read(r, binary.BigEndian, &f); err != nil {
		return 0, err
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("%w: amount %v", ErrMalformed, f)
	}

	scaled := math.Round(f * subUnit)
	if scaled >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: amount %v overflows", ErrMalformed, f)
	}

	// the product carries up to two ulps of error, so pick the
	// neighbouring sub-unit count that reproduces the wire value
	result := uint64(scaled)
	for _, delta := range []int64{0, -1, 1, -2, 2} {
		if delta < 0 && result < uint64(-delta) {
			continue
		}
		candidate := result + uint64(delta)
		if float64(candidate)/subUnit == f {
			return candidate, nil
		}
	}
	return result, nil
}
