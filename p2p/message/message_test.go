package message

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"net"
	"testing"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/nodes"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

func testAddress(t *testing.T, seed string) []byte {
	h, err := crypto.Hash(crypto.SHA256, []byte(seed))
	if err != nil {
		t.Fatalf("hash failed:%v", err)
	}
	return h
}

func testKey(t *testing.T, seed string) *crypto.PublicKey {
	pub, _, err := crypto.DeriveKeypair([]byte(seed), 0, crypto.CurveEd25519, crypto.OriginSoftware)
	if err != nil {
		t.Fatalf("derive key failed:%v", err)
	}
	return pub
}

func testTx(t *testing.T, seed string) *tx.Transaction {
	p := tx.NewParams(seed)
	p.Data = tx.Data{Content: []byte("frame content")}
	built, err := tx.GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}
	return built
}

func testNode(t *testing.T, seed string) *nodes.Node {
	reward := testAddress(t, seed+" reward")
	return &nodes.Node{
		FirstPublicKey:    testKey(t, seed+" first"),
		LastPublicKey:     testKey(t, seed+" last"),
		IP:                net.IPv4(127, 0, 0, 1).To4(),
		Port:              3002,
		HTTPPort:          4002,
		Transport:         nodes.TransportTCP,
		RewardAddress:     reward,
		OriginPublicKey:   testKey(t, seed+" origin"),
		Certificate:       []byte("cert"),
		GeoPatch:          "F1B",
		NetworkPatch:      "AC2",
		Available:         true,
		Authorized:        true,
		AuthorizationDate: 1640995200,
	}
}

func testStamp(t *testing.T) *ValidationStamp {
	return &ValidationStamp{
		Timestamp:        1640995200,
		ProofOfWork:      testKey(t, "pow"),
		ProofOfIntegrity: testAddress(t, "poi"),
		Fee:              1_000_000,
		Movements: []Movement{
			{To: testAddress(t, "mov1"), Amount: 50, Type: MovementUCO},
			{To: testAddress(t, "mov2"), Amount: 60, Type: MovementToken,
				TokenAddress: testAddress(t, "token"), TokenID: 1},
		},
		Signature: []byte("stamp signature"),
	}
}

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()

	raw := m.Marshal()
	decoded, rest, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode %s failed:%v", m, err)
	}
	if err := utils.TCheckInt("remainder", 0, len(rest)); err != nil {
		t.Fatalf("%s: %v", m, err)
	}
	if err := utils.TCheckBytes("re-encode", raw, decoded.Marshal()); err != nil {
		t.Fatalf("%s: %v", m, err)
	}
	return decoded
}

func TestRoundTripAllFrames(t *testing.T) {
	addr := testAddress(t, "address")
	prev := testAddress(t, "previous")
	key := testKey(t, "key")
	transaction := testTx(t, "tx seed")

	chain := Matrix{{true, false, true}, {false, true, false}}
	beacon := Matrix{{false, false, true}, {true, true, false}}
	ioTree := Matrix{{true, true, true}, {false, false, false}}
	crossValidate, err := NewCrossValidate(addr, testStamp(t), chain, beacon, ioTree)
	if err != nil {
		t.Fatalf("build CrossValidate failed:%v", err)
	}

	frames := []Message{
		&GetBootstrappingNodes{Patch: "F1B"},
		&GetStorageNonce{PublicKey: key},
		&ListNodes{},
		&GetTransaction{Address: addr},
		&GetTransactionChain{Address: addr},
		&GetTransactionChain{Address: addr, After: 1640995200, HasAfter: true},
		&GetUnspentOutputs{Address: addr},
		&NewTransaction{Transaction: transaction},
		&StartMining{
			Transaction:        transaction,
			WelcomeNodeKey:     testKey(t, "welcome"),
			ValidationNodeKeys: []*crypto.PublicKey{testKey(t, "v1"), testKey(t, "v2")},
		},
		&AddMiningContext{
			Address:                 addr,
			ValidationNodeKey:       testKey(t, "validator"),
			PreviousStorageNodeKeys: []*crypto.PublicKey{testKey(t, "s1")},
			ValidationNodesView:     View{true, false, true},
			ChainStorageNodesView:   View{true, true},
			BeaconStorageNodesView:  View{false, true, false, true, false, true, false, true, true},
		},
		crossValidate,
		&CrossValidationDone{
			Address: addr,
			Stamp: &CrossValidationStamp{
				NodePublicKey:   testKey(t, "cross"),
				Signature:       []byte("cross signature"),
				Inconsistencies: View{false, false, true},
			},
		},
		&ReplicateTransaction{Transaction: transaction, ChainRole: true, BeaconRole: true, AckStorage: true},
		&AcknowledgeStorage{Address: addr},
		&NotifyEndOfNodeSync{PublicKey: key, Timestamp: 1640995200},
		&GetLastTransaction{Address: addr},
		&GetBalance{Address: addr},
		&GetTransactionInputs{Address: addr},
		&GetTransactionChainLength{Address: addr},
		&GetP2PView{NodePublicKeys: []*crypto.PublicKey{testKey(t, "p1"), testKey(t, "p2")}},
		&GetFirstPublicKey{Address: addr},
		&GetLastTransactionAddress{Address: addr, Timestamp: 1640995200},
		&NotifyLastTransactionAddress{Address: addr, PreviousAddress: prev, Timestamp: 1640995200},
		&GetTransactionSummary{Address: addr},
		&NodeAvailability{PublicKey: key},
		&Ping{},

		&Error{Reason: ReasonNetworkIssue},
		&Transaction{Transaction: transaction},
		&TransactionList{Transactions: []*tx.Transaction{transaction, testTx(t, "other seed")}},
		&NotFound{},
		&Ok{},
		&Balance{UCO: 123_456_789, Tokens: []TokenBalance{{Address: testAddress(t, "token"), Amount: 42}}},
		&EncryptedStorageNonce{Nonce: []byte("sealed nonce")},
		&BootstrappingNodes{
			NewSeeds:     []*nodes.Node{testNode(t, "seed1")},
			ClosestNodes: []*nodes.Node{testNode(t, "close1"), testNode(t, "close2")},
		},
		&UnspentOutputList{UnspentOutputs: []*UnspentOutput{
			{From: addr, Amount: 10, Type: UTXOUco},
			{From: prev, Amount: 20, Type: UTXOToken, TokenAddress: testAddress(t, "token"), TokenID: 3},
		}},
		&NodeList{Nodes: []*nodes.Node{testNode(t, "member")}},
		&LastTransactionAddress{Address: addr},
		&FirstPublicKey{PublicKey: key},
		&TransactionSummary{
			Address:            addr,
			Timestamp:          1640995200,
			Type:               tx.TypeTransfer,
			Fee:                1000,
			MovementsAddresses: [][]byte{prev},
		},
		&P2PView{AvailableNodes: View{true, false, true, true}},
		&TransactionInputList{Inputs: []*TransactionInput{
			{UnspentOutput: UnspentOutput{From: addr, Amount: 5, Type: UTXOUco}, Spent: true, Timestamp: 1640995200},
		}},
		&TransactionChainLength{Length: 128},
	}

	for _, frame := range frames {
		roundTrip(t, frame)
	}
}

func TestGetTransactionWireLayout(t *testing.T) {
	digest := sha256.Sum256([]byte("archethic"))
	addr := append([]byte{0x00}, digest[:]...)

	raw := (&GetTransaction{Address: addr}).Marshal()

	expect := append([]byte{0x03, 0x00}, digest[:]...)
	if err := utils.TCheckBytes("wire form", expect, raw); err != nil {
		t.Fatal(err)
	}

	decoded, rest, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode failed:%v", err)
	}
	if err := utils.TCheckInt("remainder", 0, len(rest)); err != nil {
		t.Fatal(err)
	}
	if err := utils.TCheckBytes("address", addr, decoded.(*GetTransaction).Address); err != nil {
		t.Fatal(err)
	}
}

func TestGetTransactionChainFramings(t *testing.T) {
	addr := testAddress(t, "chain")

	short, _, err := Decode((&GetTransactionChain{Address: addr}).Marshal())
	if err != nil {
		t.Fatalf("decode short framing failed:%v", err)
	}
	if short.(*GetTransactionChain).HasAfter {
		t.Fatal("short framing must not carry a timestamp")
	}

	extended, _, err := Decode((&GetTransactionChain{Address: addr, After: 42, HasAfter: true}).Marshal())
	if err != nil {
		t.Fatalf("decode extended framing failed:%v", err)
	}
	decoded := extended.(*GetTransactionChain)
	if !decoded.HasAfter {
		t.Fatal("extended framing lost the timestamp")
	}
	if err := utils.TCheckUint32("after", 42, decoded.After); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeUnknownTags(t *testing.T) {
	for _, tag := range []uint8{25, 100, 238, 255} {
		_, _, err := Decode([]byte{tag, 1, 2, 3})
		if !errors.Is(err, ErrUnknownFrame) {
			t.Fatalf("tag %d: expect ErrUnknownFrame, got %v", tag, err)
		}
	}
}

func TestDecodeUnknownAlgorithm(t *testing.T) {
	raw := (&GetTransaction{Address: testAddress(t, "x")}).Marshal()
	raw[1] = 200 // corrupt the hash algorithm tag
	_, _, err := Decode(raw)
	if !errors.Is(err, crypto.ErrUnknownAlgorithm) {
		t.Fatalf("expect ErrUnknownAlgorithm, got %v", err)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	if _, _, err := Decode(nil); err == nil {
		t.Fatal("expect incomplete on empty input")
	}

	raw := (&NotifyLastTransactionAddress{
		Address:         testAddress(t, "a"),
		PreviousAddress: testAddress(t, "b"),
		Timestamp:       7,
	}).Marshal()

	for _, cut := range []int{1, 2, 10, len(raw) - 1} {
		_, _, err := Decode(raw[:cut])
		var incomplete *IncompleteError
		if !errors.As(err, &incomplete) {
			t.Fatalf("cut at %d: expect IncompleteError, got %v", cut, err)
		}
	}
}

func TestDecodeRemainder(t *testing.T) {
	first := (&Ping{}).Marshal()
	second := (&AcknowledgeStorage{Address: testAddress(t, "ack")}).Marshal()
	stream := append(append([]byte{}, first...), second...)

	decoded, rest, err := Decode(stream)
	if err != nil {
		t.Fatalf("decode failed:%v", err)
	}
	if _, ok := decoded.(*Ping); !ok {
		t.Fatalf("expect Ping, got %s", decoded)
	}
	if err := utils.TCheckBytes("remainder", second, rest); err != nil {
		t.Fatal(err)
	}

	decoded, rest, err = Decode(rest)
	if err != nil {
		t.Fatalf("decode remainder failed:%v", err)
	}
	if _, ok := decoded.(*AcknowledgeStorage); !ok {
		t.Fatalf("expect AcknowledgeStorage, got %s", decoded)
	}
	if err := utils.TCheckInt("final remainder", 0, len(rest)); err != nil {
		t.Fatal(err)
	}
}

func TestViewPaddingCanonicalisation(t *testing.T) {
	raw := (&P2PView{AvailableNodes: View{true, false, true}}).Marshal()

	// flip the wire padding bits; they are legal but meaningless
	dirty := append([]byte{}, raw...)
	dirty[len(dirty)-1] |= 0x1F

	decoded, _, err := Decode(dirty)
	if err != nil {
		t.Fatalf("decode padded view failed:%v", err)
	}

	view := decoded.(*P2PView).AvailableNodes
	if err := utils.TCheckInt("view length", 3, len(view)); err != nil {
		t.Fatal(err)
	}

	// encode of decode of encode equals encode
	if err := utils.TCheckBytes("canonical form", raw, decoded.Marshal()); err != nil {
		t.Fatal(err)
	}
}

func TestReplicateTransactionBits(t *testing.T) {
	transaction := testTx(t, "replicate")

	m := &ReplicateTransaction{Transaction: transaction, IORole: true}
	raw := m.Marshal()

	flags := raw[len(raw)-1]
	if err := utils.TCheckUint8("packed flags", 0x40, flags); err != nil {
		t.Fatal(err)
	}

	decoded := roundTrip(t, m).(*ReplicateTransaction)
	if decoded.ChainRole || decoded.BeaconRole || decoded.AckStorage {
		t.Fatal("unset bits decoded as set")
	}
	if !decoded.IORole {
		t.Fatal("io role bit lost")
	}
}

func TestCrossValidateRaggedTrees(t *testing.T) {
	addr := testAddress(t, "cv")
	square := Matrix{{true, false}, {false, true}}
	ragged := Matrix{{true}, {false, true}}

	if _, err := NewCrossValidate(addr, testStamp(t), square, square, ragged); err == nil {
		t.Fatal("expect ragged trees rejected")
	}
	if _, err := NewCrossValidate(addr, testStamp(t), square, Matrix{{true, false}}, square); err == nil {
		t.Fatal("expect trees of different row counts rejected")
	}
}

func TestBalanceAmountExactness(t *testing.T) {
	amounts := []uint64{
		0,
		1,
		99_999_999,
		100_000_000,
		123_456_789_876,
		1 << 50, // still exactly invertible from the wire float
	}

	for _, amount := range amounts {
		decoded := roundTrip(t, &Balance{UCO: amount}).(*Balance)
		if err := utils.TCheckUint64("uco sub-units", amount, decoded.UCO); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBalanceRejectsBadFloats(t *testing.T) {
	bad := [][]byte{
		{TagBalance, 0x7F, 0xF0, 0, 0, 0, 0, 0, 0, 0}, // +Inf
		{TagBalance, 0x7F, 0xF8, 0, 0, 0, 0, 0, 0, 0}, // NaN
		{TagBalance, 0xBF, 0xF0, 0, 0, 0, 0, 0, 0, 0}, // -1.0
	}
	for _, raw := range bad {
		if _, _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expect ErrMalformed, got %v", err)
		}
	}
}

func TestTransparentResponses(t *testing.T) {
	transaction := testTx(t, "transparent")

	// the Transaction response body is exactly the canonical transaction
	raw := (&Transaction{Transaction: transaction}).Marshal()
	if err := utils.TCheckBytes("transparent payload", transaction.Marshal(), raw[1:]); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.Write(raw)
	decoded, _, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode failed:%v", err)
	}
	if !decoded.(*Transaction).Transaction.Equal(transaction) {
		t.Fatal("transparent round-trip mismatch")
	}
}
