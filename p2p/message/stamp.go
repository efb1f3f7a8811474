/*
ValidationStamp
+------------+---------------------+
| Timestamp  |    ProofOfWork      |
+------------+---------------------+
|        ProofOfIntegrity          |
+--------+-------------------------+
| Fee    | MovsN | Movs:(Movement) |
+--------+-------------------------+
| SigL   |          Sig            |
+--------+-------------------------+
(bytes)
Timestamp       8
ProofOfWork     tagged key
ProofOfIntegrity tagged hash
Fee             8
Movements size  1
Sig length      1

Movement
+--------+--------+------+
| To     | Amount | Type |
+--------+--------+------+
Type 1 adds: TokenAddress (tagged hash), TokenID 4

CrossValidationStamp
+------------------+--------+-------+
| NodePublicKey    | SigL   | Sig   |
+------------------+--------+-------+
|  Inconsistencies:(View)           |
+-----------------------------------+
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

// MovementType tags a ledger movement of a validation stamp
type MovementType = uint8

const (
	MovementUCO   = MovementType(0)
	MovementToken = MovementType(1)
)

// Movement is one fund movement settled by a validation stamp
type Movement struct {
	To           []byte
	Amount       uint64
	Type         MovementType
	TokenAddress []byte
	TokenID      uint32
}

// ValidationStamp is the coordinator's proof over a mined transaction
type ValidationStamp struct {
	Timestamp        uint64
	ProofOfWork      *crypto.PublicKey
	ProofOfIntegrity []byte
	Fee              uint64
	Movements        []Movement
	Signature        []byte
}

func (s *ValidationStamp) marshalTo(buf *bytes.Buffer) {
	binary.Write(buf, binary.BigEndian, s.Timestamp)
	buf.Write(s.ProofOfWork.Marshal())
	buf.Write(s.ProofOfIntegrity)
	binary.Write(buf, binary.BigEndian, s.Fee)

	buf.WriteByte(uint8(len(s.Movements)))
	for _, mov := range s.Movements {
		buf.Write(mov.To)
		binary.Write(buf, binary.BigEndian, mov.Amount)
		buf.WriteByte(mov.Type)
		if mov.Type == MovementToken {
			buf.Write(mov.TokenAddress)
			binary.Write(buf, binary.BigEndian, mov.TokenID)
		}
	}

	buf.WriteByte(utils.Uint8Len(s.Signature))
	buf.Write(s.Signature)
}

func unmarshalValidationStamp(r io.Reader) (*ValidationStamp, error) {
	result := &ValidationStamp{}
	var err error

	if result.Timestamp, err = readUint64(r); err != nil {
		return nil, err
	}
	if result.ProofOfWork, err = crypto.ReadPublicKey(r); err != nil {
		return nil, err
	}
	if result.ProofOfIntegrity, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.Fee, err = readUint64(r); err != nil {
		return nil, err
	}

	movsN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < movsN; i++ {
		var mov Movement
		if mov.To, err = crypto.ReadHash(r); err != nil {
			return nil, err
		}
		if mov.Amount, err = readUint64(r); err != nil {
			return nil, err
		}
		if mov.Type, err = readUint8(r); err != nil {
			return nil, err
		}
		switch mov.Type {
		case MovementUCO:
		case MovementToken:
			if mov.TokenAddress, err = crypto.ReadHash(r); err != nil {
				return nil, err
			}
			if mov.TokenID, err = readUint32(r); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: movement type %d", ErrMalformed, mov.Type)
		}
		result.Movements = append(result.Movements, mov)
	}

	sigLen, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if result.Signature, err = readFull(r, int(sigLen)); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *ValidationStamp) String() string {
	return fmt.Sprintf("stamp at %s fee %d with %d movements",
		utils.TimeToString(int64(s.Timestamp)), s.Fee, len(s.Movements))
}

// CrossValidationStamp is one validator's countersignature, with the
// inconsistencies it observed as a bit view over the checked fields
type CrossValidationStamp struct {
	NodePublicKey   *crypto.PublicKey
	Signature       []byte
	Inconsistencies View
}

func (s *CrossValidationStamp) marshalTo(buf *bytes.Buffer) {
	buf.Write(s.NodePublicKey.Marshal())
	buf.WriteByte(utils.Uint8Len(s.Signature))
	buf.Write(s.Signature)
	writeView(buf, s.Inconsistencies)
}

func unmarshalCrossValidationStamp(r io.Reader) (*CrossValidationStamp, error) {
	result := &CrossValidationStamp{}
	var err error

	if result.NodePublicKey, err = crypto.ReadPublicKey(r); err != nil {
		return nil, err
	}

	sigLen, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if result.Signature, err = readFull(r, int(sigLen)); err != nil {
		return nil, err
	}

	if result.Inconsistencies, err = readView(r); err != nil {
		return nil, err
	}
	return result, nil
}
