package transaction

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/utils"
)

// Type is the transaction type tag
type Type = uint8

const (
	TypeNode              = Type(0)
	TypeNodeSharedSecrets = Type(1)
	TypeOrigin            = Type(2)
	TypeBeacon            = Type(3)
	TypeOracle            = Type(4)
	TypeCodeProposal      = Type(5)
	TypeCodeApproval      = Type(6)
	TypeTransfer          = Type(7)
	TypeToken             = Type(8)
	TypeHosting           = Type(9)
	TypeKeychain          = Type(10)
	TypeKeychainAccess    = Type(11)
	TypeMintRewards       = Type(12)
	TypeNodeRewards       = Type(13)
)

var typeNames = map[Type]string{
	TypeNode:              "node",
	TypeNodeSharedSecrets: "node shared secrets",
	TypeOrigin:            "origin",
	TypeBeacon:            "beacon",
	TypeOracle:            "oracle",
	TypeCodeProposal:      "code proposal",
	TypeCodeApproval:      "code approval",
	TypeTransfer:          "transfer",
	TypeToken:             "token",
	TypeHosting:           "hosting",
	TypeKeychain:          "keychain",
	TypeKeychainAccess:    "keychain access",
	TypeMintRewards:       "mint rewards",
	TypeNodeRewards:       "node rewards",
}

// ValidType reports whether t is a known transaction type
func ValidType(t Type) bool {
	_, ok := typeNames[t]
	return ok
}

// TypeName returns the textual name used in rejection messages
func TypeName(t Type) string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", t)
}

// AuthorizedKey grants one public key access to an ownership secret
type AuthorizedKey struct {
	PublicKey    *crypto.PublicKey
	EncryptedKey []byte
}

// Ownership is a secret with the keys allowed to decrypt it
type Ownership struct {
	Secret         []byte
	AuthorizedKeys []AuthorizedKey
}

// UCOTransfer moves an amount of UCO, in 10^-8 sub-units
type UCOTransfer struct {
	To     []byte
	Amount uint64
}

// TokenTransfer moves an amount of a token, in 10^-8 sub-units
type TokenTransfer struct {
	TokenAddress []byte
	To           []byte
	Amount       uint64
	TokenID      uint32
}

// Ledger groups the fund movements of a transaction
type Ledger struct {
	UCO   []UCOTransfer
	Token []TokenTransfer
}

// Data is the mutable payload of a transaction
type Data struct {
	Content    []byte
	Code       []byte
	Ownerships []Ownership
	Recipients [][]byte
	Ledger     Ledger
}

// Transaction is an immutable chain record. Address identifies it,
// PreviousSignature authenticates the payload under the chain key and
// OriginSignature ties it to a recognized key producer.
type Transaction struct {
	Version           uint32
	Address           []byte
	Type              Type
	Data              Data
	PreviousPublicKey *crypto.PublicKey
	PreviousSignature []byte
	OriginSignature   []byte
}

// New builds an unsigned transaction. The previous key signs and points
// back at the predecessor; the address derives from the next chain key,
// so that the successor's previous address lands on this transaction.
func New(txType Type, data Data, previousPublicKey, nextPublicKey *crypto.PublicKey, algo crypto.HashAlgo) (*Transaction, error) {
	if !ValidType(txType) {
		return nil, fmt.Errorf("invalid transaction type %d", txType)
	}

	address, err := crypto.DeriveAddress(nextPublicKey, algo)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		Version:           params.TransactionVersion,
		Address:           address,
		Type:              txType,
		Data:              data,
		PreviousPublicKey: previousPublicKey,
	}, nil
}

// PreviousAddress returns the chain address derived from the previous
// public key, under the same hash algorithm as the transaction address
func (t *Transaction) PreviousAddress() ([]byte, error) {
	algo := crypto.SHA256
	if len(t.Address) > 0 {
		algo = t.Address[0]
	}
	return crypto.DeriveAddress(t.PreviousPublicKey, algo)
}

// SignPrevious seals the payload under the chain private key
func (t *Transaction) SignPrevious(priv *crypto.PrivateKey) error {
	sig, err := priv.Sign(t.payloadToSign())
	if err != nil {
		return err
	}
	t.PreviousSignature = sig
	return nil
}

// SignOrigin seals the transaction under an origin device key;
// must be called after SignPrevious
func (t *Transaction) SignOrigin(priv *crypto.PrivateKey) error {
	if len(t.PreviousSignature) == 0 {
		return errors.New("origin signature requires the previous signature first")
	}
	sig, err := priv.Sign(t.payloadForOriginSign())
	if err != nil {
		return err
	}
	t.OriginSignature = sig
	return nil
}

// VerifyPreviousSignature checks the payload signature under the
// embedded chain public key
func (t *Transaction) VerifyPreviousSignature() bool {
	if t.PreviousPublicKey == nil || len(t.PreviousSignature) == 0 {
		return false
	}
	return crypto.Verify(t.PreviousPublicKey, t.payloadToSign(), t.PreviousSignature)
}

// VerifyOriginSignature checks the origin signature under a candidate
// origin public key
func (t *Transaction) VerifyOriginSignature(originPub *crypto.PublicKey) bool {
	if originPub == nil || len(t.OriginSignature) == 0 {
		return false
	}
	return crypto.Verify(originPub, t.payloadForOriginSign(), t.OriginSignature)
}

func (t *Transaction) payloadToSign() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	writeUint32(buf, t.Version)
	buf.Write(t.Address)
	buf.WriteByte(t.Type)
	marshalData(buf, &t.Data)

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result
}

func (t *Transaction) payloadForOriginSign() []byte {
	payload := t.payloadToSign()
	payload = append(payload, t.PreviousPublicKey.Marshal()...)
	payload = append(payload, utils.Uint8Len(t.PreviousSignature))
	payload = append(payload, t.PreviousSignature...)
	return payload
}

// Equal reports deep equality of two transactions; since the canonical
// serialisation is stable, byte equality of Marshal outputs is the test
func (t *Transaction) Equal(other *Transaction) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(t.Marshal(), other.Marshal())
}

func (t *Transaction) String() string {
	return fmt.Sprintf("%s tx %s", TypeName(t.Type), utils.ToHex(t.Address))
}
