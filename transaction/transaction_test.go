package transaction

import (
	"bytes"
	"testing"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

func richParams(t *testing.T) *Params {
	authPub, _, err := crypto.DeriveKeypair([]byte("authorized"), 0, crypto.CurveEd25519, crypto.OriginSoftware)
	if err != nil {
		t.Fatalf("derive authorized key failed:%v", err)
	}

	to, err := crypto.Hash(crypto.SHA256, []byte("to"))
	if err != nil {
		t.Fatalf("hash failed:%v", err)
	}
	token, err := crypto.Hash(crypto.SHA3256, []byte("token"))
	if err != nil {
		t.Fatalf("hash failed:%v", err)
	}

	p := NewParams("rich tx seed")
	p.Data = Data{
		Content: []byte("some content"),
		Code:    []byte("condition inherit: []"),
		Ownerships: []Ownership{
			{
				Secret: []byte("sealed secret"),
				AuthorizedKeys: []AuthorizedKey{
					{PublicKey: authPub, EncryptedKey: bytes.Repeat([]byte{7}, 80)},
				},
			},
		},
		Recipients: [][]byte{to},
		Ledger: Ledger{
			UCO:   []UCOTransfer{{To: to, Amount: 120_000_000}},
			Token: []TokenTransfer{{TokenAddress: token, To: to, Amount: 300, TokenID: 2}},
		},
	}
	return p
}

func TestMarshalUnmarshal(t *testing.T) {
	p := richParams(t)
	tx, err := GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	rTx, err := Unmarshal(bytes.NewReader(tx.Marshal()))
	if err != nil {
		t.Fatalf("unmarshal transaction failed:%v", err)
	}

	if err := Check(rTx, p); err != nil {
		t.Fatal(err)
	}
	if !tx.Equal(rTx) {
		t.Fatal("round-tripped transaction differs")
	}
}

func TestMarshalStable(t *testing.T) {
	p := richParams(t)
	tx, err := GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	if err := utils.TCheckBytes("canonical form", tx.Marshal(), tx.Marshal()); err != nil {
		t.Fatal(err)
	}

	rTx, err := Unmarshal(bytes.NewReader(tx.Marshal()))
	if err != nil {
		t.Fatalf("unmarshal transaction failed:%v", err)
	}
	if err := utils.TCheckBytes("re-marshal", tx.Marshal(), rTx.Marshal()); err != nil {
		t.Fatal(err)
	}
}

func TestUnmarshalConcatenated(t *testing.T) {
	p1 := richParams(t)
	tx1, err := GenFromParams(p1)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	p2 := NewParams("second tx seed")
	p2.Type = TypeHosting
	p2.Data = Data{Content: []byte(`{"naddress":"ipfs"}`)}
	tx2, err := GenFromParams(p2)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	stream := bytes.NewReader(append(tx1.Marshal(), tx2.Marshal()...))

	rTx1, err := Unmarshal(stream)
	if err != nil {
		t.Fatalf("unmarshal first transaction failed:%v", err)
	}
	rTx2, err := Unmarshal(stream)
	if err != nil {
		t.Fatalf("unmarshal second transaction failed:%v", err)
	}

	if err := Check(rTx1, p1); err != nil {
		t.Fatal(err)
	}
	if err := Check(rTx2, p2); err != nil {
		t.Fatal(err)
	}
	if err := utils.TCheckInt("remaining bytes", 0, stream.Len()); err != nil {
		t.Fatal(err)
	}
}

func TestUnmarshalInvalidType(t *testing.T) {
	p := richParams(t)
	tx, err := GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	raw := tx.Marshal()
	// the type byte follows the version and the tagged address
	raw[4+1+32] = 250
	if _, err := Unmarshal(bytes.NewReader(raw)); err == nil {
		t.Fatal("expect invalid type rejected")
	}
}

func TestPreviousAddress(t *testing.T) {
	p := richParams(t)
	tx, err := GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	prevAddr, err := tx.PreviousAddress()
	if err != nil {
		t.Fatalf("previous address failed:%v", err)
	}

	expect, err := crypto.DeriveAddress(tx.PreviousPublicKey, crypto.SHA256)
	if err != nil {
		t.Fatalf("derive address failed:%v", err)
	}
	if err := utils.TCheckBytes("previous address", expect, prevAddr); err != nil {
		t.Fatal(err)
	}
}

func TestSignatureTampering(t *testing.T) {
	p := richParams(t)
	tx, err := GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}

	if !tx.VerifyPreviousSignature() {
		t.Fatal("expect valid previous signature")
	}
	if !tx.VerifyOriginSignature(p.OriginPublicKey) {
		t.Fatal("expect valid origin signature")
	}

	tampered := *tx
	tampered.Data.Content = append([]byte{}, tx.Data.Content...)
	tampered.Data.Content[0] ^= 0xFF
	if tampered.VerifyPreviousSignature() {
		t.Fatal("expect tampered content to break the previous signature")
	}

	tampered = *tx
	tampered.PreviousSignature = append([]byte{}, tx.PreviousSignature...)
	tampered.PreviousSignature[0] ^= 0xFF
	if tampered.VerifyPreviousSignature() {
		t.Fatal("expect tampered previous signature rejected")
	}
	if tampered.VerifyOriginSignature(p.OriginPublicKey) {
		t.Fatal("expect origin signature to cover the previous signature")
	}
}

func TestTypeNames(t *testing.T) {
	if err := utils.TCheckString("node type name", "node", TypeName(TypeNode)); err != nil {
		t.Fatal(err)
	}
	if err := utils.TCheckString("nss type name", "node shared secrets", TypeName(TypeNodeSharedSecrets)); err != nil {
		t.Fatal(err)
	}
	if ValidType(99) {
		t.Fatal("expect type 99 invalid")
	}
}
