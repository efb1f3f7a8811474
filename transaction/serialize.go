/*
Transaction
+---------------------------------+
|     Version     |    Address    |
+---------+-------+---------------+
|  Type   |        (Data)         |
+---------+-----------------------+
|       PreviousPublicKey         |
+----------+----------------------+
| PrevSigL |       PrevSig        |
+----------+-+--------------------+
| OriginSigL |     OriginSig      |
+------------+--------------------+
(bytes)
Version                 4
Address                 tagged hash
Type                    1
PreviousPublicKey       tagged key
PrevSig length          1
PrevSig                 -
OriginSig length        1
OriginSig               -

Data
+---------+-----------------------+
| CodeL   |         Code          |
+---------+-----+-----------------+
| ContentL      |    Content      |
+---------+-----+-----------------+
| OwnsN   |  Owns:(Ownership)     |
+---------+-----+-----------------+
| RcptsN  |  Rcpts:(tagged hash)  |
+---------+-----------------------+
|           (Ledger)              |
+---------------------------------+
(bytes)
Code length             4
Code                    -
Content length          4
Content                 -
Ownerships size         1
Recipients size         1

Ownership
+-----------+---------------------+
| SecretL   |       Secret        |
+-----------+-----+---------------+
| AuthKeysN |  AuthKeys           |
+-----------+-----+---------------+
(bytes)
Secret length           4
AuthKeys size           1
AuthKey                 tagged key, EncKey length 2, EncKey

Ledger
+--------+------------------------+
| UCOsN  |  UCOs:(To,Amount)      |
+--------+-+----------------------+
| TokensN  | Tokens:(Token,To,    |
|          |  Amount,TokenID)     |
+----------+----------------------+
(bytes)
UCO transfers size      1
Amount                  8
Token transfers size    1
TokenID                 4
*/
package transaction

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

// Marshal returns the canonical byte form of the transaction; two
// logically equal transactions always produce byte-equal outputs
func (t *Transaction) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	writeUint32(buf, t.Version)
	buf.Write(t.Address)
	buf.WriteByte(t.Type)
	marshalData(buf, &t.Data)
	buf.Write(t.PreviousPublicKey.Marshal())
	buf.WriteByte(utils.Uint8Len(t.PreviousSignature))
	buf.Write(t.PreviousSignature)
	buf.WriteByte(utils.Uint8Len(t.OriginSignature))
	buf.Write(t.OriginSignature)

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result
}

// Unmarshal reads one canonical transaction from the stream; the layout
// is self-delimiting, so records can be concatenated back-to-back
func Unmarshal(data io.Reader) (*Transaction, error) {
	result := &Transaction{}
	var err error

	if err = binary.Read(data, binary.BigEndian, &result.Version); err != nil {
		return nil, err
	}
	if result.Address, err = crypto.ReadHash(data); err != nil {
		return nil, err
	}
	if err = binary.Read(data, binary.BigEndian, &result.Type); err != nil {
		return nil, err
	}
	if !ValidType(result.Type) {
		return nil, fmt.Errorf("invalid transaction type %d", result.Type)
	}

	if err = unmarshalData(data, &result.Data); err != nil {
		return nil, err
	}

	if result.PreviousPublicKey, err = crypto.ReadPublicKey(data); err != nil {
		return nil, err
	}
	if result.PreviousSignature, err = readBytes8(data); err != nil {
		return nil, err
	}
	if result.OriginSignature, err = readBytes8(data); err != nil {
		return nil, err
	}

	return result, nil
}

func marshalData(buf io.Writer, d *Data) {
	writeUint32Bytes(buf, d.Code)
	writeUint32Bytes(buf, d.Content)

	writeByte(buf, uint8(len(d.Ownerships)))
	for i := range d.Ownerships {
		marshalOwnership(buf, &d.Ownerships[i])
	}

	writeByte(buf, uint8(len(d.Recipients)))
	for _, recipient := range d.Recipients {
		buf.Write(recipient)
	}

	writeByte(buf, uint8(len(d.Ledger.UCO)))
	for _, transfer := range d.Ledger.UCO {
		buf.Write(transfer.To)
		binary.Write(buf, binary.BigEndian, transfer.Amount)
	}

	writeByte(buf, uint8(len(d.Ledger.Token)))
	for _, transfer := range d.Ledger.Token {
		buf.Write(transfer.TokenAddress)
		buf.Write(transfer.To)
		binary.Write(buf, binary.BigEndian, transfer.Amount)
		binary.Write(buf, binary.BigEndian, transfer.TokenID)
	}
}

func marshalOwnership(buf io.Writer, o *Ownership) {
	writeUint32Bytes(buf, o.Secret)
	writeByte(buf, uint8(len(o.AuthorizedKeys)))
	for _, ak := range o.AuthorizedKeys {
		buf.Write(ak.PublicKey.Marshal())
		binary.Write(buf, binary.BigEndian, utils.Uint16Len(ak.EncryptedKey))
		buf.Write(ak.EncryptedKey)
	}
}

func unmarshalData(data io.Reader, d *Data) error {
	var err error

	if d.Code, err = readBytes32(data); err != nil {
		return err
	}
	if d.Content, err = readBytes32(data); err != nil {
		return err
	}

	var ownsN uint8
	if err = binary.Read(data, binary.BigEndian, &ownsN); err != nil {
		return err
	}
	for i := uint8(0); i < ownsN; i++ {
		ownership, err := unmarshalOwnership(data)
		if err != nil {
			return err
		}
		d.Ownerships = append(d.Ownerships, *ownership)
	}

	var rcptsN uint8
	if err = binary.Read(data, binary.BigEndian, &rcptsN); err != nil {
		return err
	}
	for i := uint8(0); i < rcptsN; i++ {
		recipient, err := crypto.ReadHash(data)
		if err != nil {
			return err
		}
		d.Recipients = append(d.Recipients, recipient)
	}

	var ucosN uint8
	if err = binary.Read(data, binary.BigEndian, &ucosN); err != nil {
		return err
	}
	for i := uint8(0); i < ucosN; i++ {
		var transfer UCOTransfer
		if transfer.To, err = crypto.ReadHash(data); err != nil {
			return err
		}
		if err = binary.Read(data, binary.BigEndian, &transfer.Amount); err != nil {
			return err
		}
		d.Ledger.UCO = append(d.Ledger.UCO, transfer)
	}

	var tokensN uint8
	if err = binary.Read(data, binary.BigEndian, &tokensN); err != nil {
		return err
	}
	for i := uint8(0); i < tokensN; i++ {
		var transfer TokenTransfer
		if transfer.TokenAddress, err = crypto.ReadHash(data); err != nil {
			return err
		}
		if transfer.To, err = crypto.ReadHash(data); err != nil {
			return err
		}
		if err = binary.Read(data, binary.BigEndian, &transfer.Amount); err != nil {
			return err
		}
		if err = binary.Read(data, binary.BigEndian, &transfer.TokenID); err != nil {
			return err
		}
		d.Ledger.Token = append(d.Ledger.Token, transfer)
	}

	return nil
}

func unmarshalOwnership(data io.Reader) (*Ownership, error) {
	result := &Ownership{}
	var err error

	if result.Secret, err = readBytes32(data); err != nil {
		return nil, err
	}

	var authN uint8
	if err = binary.Read(data, binary.BigEndian, &authN); err != nil {
		return nil, err
	}
	for i := uint8(0); i < authN; i++ {
		var ak AuthorizedKey
		if ak.PublicKey, err = crypto.ReadPublicKey(data); err != nil {
			return nil, err
		}
		var encLen uint16
		if err = binary.Read(data, binary.BigEndian, &encLen); err != nil {
			return nil, err
		}
		ak.EncryptedKey = make([]byte, encLen)
		if _, err = io.ReadFull(data, ak.EncryptedKey); err != nil {
			return nil, err
		}
		result.AuthorizedKeys = append(result.AuthorizedKeys, ak)
	}

	return result, nil
}

func writeByte(w io.Writer, b uint8) {
	w.Write([]byte{b})
}

func writeUint32(w io.Writer, v uint32) {
	binary.Write(w, binary.BigEndian, v)
}

func writeUint32Bytes(w io.Writer, data []byte) {
	binary.Write(w, binary.BigEndian, utils.Uint32Len(data))
	w.Write(data)
}

func readBytes8(data io.Reader) ([]byte, error) {
	var size uint8
	if err := binary.Read(data, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	result := make([]byte, size)
	if _, err := io.ReadFull(data, result); err != nil {
		return nil, err
	}
	return result, nil
}

func readBytes32(data io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(data, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	result := make([]byte, size)
	if _, err := io.ReadFull(data, result); err != nil {
		return nil, err
	}
	return result, nil
}
