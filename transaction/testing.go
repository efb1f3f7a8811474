package transaction

// testing.go contains some test helpers

import (
	"bytes"
	"fmt"

	"github.com/kgricour/archethic-node/crypto"
)

// Params carries everything needed to build a signed transaction in tests
type Params struct {
	Seed       []byte
	Curve      crypto.Curve
	KeyOrigin  crypto.Origin
	HashAlgo   crypto.HashAlgo
	Type       Type
	Data       Data
	OriginSeed []byte

	PreviousPublicKey *crypto.PublicKey
	OriginPublicKey   *crypto.PublicKey
}

// NewParams returns transfer transaction params with software ed25519 keys
func NewParams(seed string) *Params {
	return &Params{
		Seed:       []byte(seed),
		Curve:      crypto.CurveEd25519,
		KeyOrigin:  crypto.OriginSoftware,
		HashAlgo:   crypto.SHA256,
		Type:       TypeTransfer,
		OriginSeed: []byte(seed + " origin"),
	}
}

// GenFromParams builds and double-signs a transaction, recording the
// chain and origin public keys back into the params
func GenFromParams(p *Params) (*Transaction, error) {
	pub, priv, err := crypto.DeriveKeypair(p.Seed, 0, p.Curve, p.KeyOrigin)
	if err != nil {
		return nil, err
	}
	p.PreviousPublicKey = pub

	nextPub, _, err := crypto.DeriveKeypair(p.Seed, 1, p.Curve, p.KeyOrigin)
	if err != nil {
		return nil, err
	}

	originPub, originPriv, err := crypto.DeriveKeypair(p.OriginSeed, 0, p.Curve, p.KeyOrigin)
	if err != nil {
		return nil, err
	}
	p.OriginPublicKey = originPub

	tx, err := New(p.Type, p.Data, pub, nextPub, p.HashAlgo)
	if err != nil {
		return nil, err
	}
	if err := tx.SignPrevious(priv); err != nil {
		return nil, err
	}
	if err := tx.SignOrigin(originPriv); err != nil {
		return nil, err
	}
	return tx, nil
}

// Check verifies that tx matches what GenFromParams built
func Check(tx *Transaction, p *Params) error {
	if tx.Type != p.Type {
		return checkErrorf("type", p.Type, tx.Type)
	}
	if !tx.PreviousPublicKey.Equal(p.PreviousPublicKey) {
		return checkErrorf("previous public key", p.PreviousPublicKey, tx.PreviousPublicKey)
	}

	nextPub, _, err := crypto.DeriveKeypair(p.Seed, 1, p.Curve, p.KeyOrigin)
	if err != nil {
		return err
	}
	expectAddr, err := crypto.DeriveAddress(nextPub, p.HashAlgo)
	if err != nil {
		return err
	}
	if !bytes.Equal(tx.Address, expectAddr) {
		return checkErrorf("address", expectAddr, tx.Address)
	}

	if !bytes.Equal(tx.Data.Content, p.Data.Content) {
		return checkErrorf("content", p.Data.Content, tx.Data.Content)
	}
	if !bytes.Equal(tx.Data.Code, p.Data.Code) {
		return checkErrorf("code", p.Data.Code, tx.Data.Code)
	}
	if len(tx.Data.Ownerships) != len(p.Data.Ownerships) {
		return checkErrorf("ownerships size", len(p.Data.Ownerships), len(tx.Data.Ownerships))
	}
	if len(tx.Data.Recipients) != len(p.Data.Recipients) {
		return checkErrorf("recipients size", len(p.Data.Recipients), len(tx.Data.Recipients))
	}
	if len(tx.Data.Ledger.UCO) != len(p.Data.Ledger.UCO) {
		return checkErrorf("uco transfers size", len(p.Data.Ledger.UCO), len(tx.Data.Ledger.UCO))
	}
	if len(tx.Data.Ledger.Token) != len(p.Data.Ledger.Token) {
		return checkErrorf("token transfers size", len(p.Data.Ledger.Token), len(tx.Data.Ledger.Token))
	}

	if !tx.VerifyPreviousSignature() {
		return fmt.Errorf("previous signature does not verify")
	}
	if !tx.VerifyOriginSignature(p.OriginPublicKey) {
		return fmt.Errorf("origin signature does not verify")
	}

	return nil
}

func checkErrorf(prefix string, expect interface{}, result interface{}) error {
	return fmt.Errorf("%s check failed:expect %v, result %v", prefix, expect, result)
}
