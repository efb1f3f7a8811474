package pending

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/pools"
	"github.com/kgricour/archethic-node/scheduling"
	"github.com/kgricour/archethic-node/store"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

// fakeChain is the hand written chain store double used by the
// validator tests
type fakeChain struct {
	txs        map[string]*tx.Transaction
	firstKeys  map[string]*crypto.PublicKey
	lastOfType map[tx.Type]*store.ChainRef
	approvals  map[string]bool
	burnedFees uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:        make(map[string]*tx.Transaction),
		firstKeys:  make(map[string]*crypto.PublicKey),
		lastOfType: make(map[tx.Type]*store.ChainRef),
		approvals:  make(map[string]bool),
	}
}

func approvalKey(proposal []byte, signer *crypto.PublicKey) string {
	return utils.ToHex(proposal) + "|" + signer.String()
}

func (f *fakeChain) GetTransaction(address []byte) (*tx.Transaction, error) {
	if t, ok := f.txs[utils.ToHex(address)]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeChain) TransactionExists(address []byte) (bool, error) {
	_, ok := f.txs[utils.ToHex(address)]
	return ok, nil
}

func (f *fakeChain) FirstPublicKey(address []byte) (*crypto.PublicKey, error) {
	if key, ok := f.firstKeys[utils.ToHex(address)]; ok {
		return key, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeChain) LastAddressOfType(txType tx.Type) (*store.ChainRef, error) {
	return f.lastOfType[txType], nil
}

func (f *fakeChain) CodeProposalSignedBy(proposal []byte, signer *crypto.PublicKey) (bool, error) {
	return f.approvals[approvalKey(proposal, signer)], nil
}

func (f *fakeChain) LatestBurnedFees() (uint64, error) {
	return f.burnedFees, nil
}

type setup struct {
	network *params.Network
	chain   *fakeChain
	table   *nodes.Table
	pools   *pools.MemTable
	v       *Validator
	now     time.Time
}

func newSetup(t *testing.T) *setup {
	schedulers := scheduling.NewRegistry()
	for txType, spec := range map[tx.Type]string{
		tx.TypeNodeSharedSecrets: params.CronNodeSharedSecrets,
		tx.TypeOracle:            params.CronOracle,
		tx.TypeMintRewards:       params.CronMintRewards,
		tx.TypeNodeRewards:       params.CronNodeRewards,
	} {
		if err := schedulers.Register(txType, spec); err != nil {
			t.Fatalf("register schedule failed:%v", err)
		}
	}

	s := &setup{
		network: params.NewNetwork(),
		chain:   newFakeChain(),
		table:   nodes.NewTable(),
		pools:   pools.NewMemTable(),
		now:     time.Date(2022, 6, 15, 10, 30, 0, 0, time.UTC),
	}
	s.v = NewValidator(s.network, s.chain, s.table, s.pools, schedulers)
	return s
}

// signedTx builds a double signed transaction and registers its origin
// key with the validator
func (s *setup) signedTx(t *testing.T, seed string, txType tx.Type, data tx.Data) *tx.Transaction {
	p := tx.NewParams(seed)
	p.Type = txType
	p.Data = data
	built, err := tx.GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}
	s.pools.Add(pools.OriginKeys, p.OriginPublicKey)
	return built
}

func checkRejected(t *testing.T, err error, expect string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expect rejection %q, got acceptance", expect)
	}
	if err.Error() != expect {
		t.Fatalf("expect rejection %q, got %q", expect, err.Error())
	}
}

func hashOf(t *testing.T, data string) []byte {
	h, err := crypto.Hash(crypto.SHA256, []byte(data))
	if err != nil {
		t.Fatalf("hash failed:%v", err)
	}
	return h
}

// nodeContent builds a well formed node declaration whose certificate
// binds the chain key to a tpm device key
func nodeContent(t *testing.T, chainKey *crypto.PublicKey) []byte {
	devicePub, devicePriv, err := crypto.DeriveKeypair([]byte("tpm device"), 0,
		crypto.CurveSecp256k1, crypto.OriginTPM)
	if err != nil {
		t.Fatalf("derive device key failed:%v", err)
	}

	cert, err := devicePriv.Sign(chainKey.Marshal())
	if err != nil {
		t.Fatalf("sign certificate failed:%v", err)
	}

	content, err := nodes.EncodeContent(&nodes.TransactionContent{
		IP:              net.IPv4(80, 20, 10, 200),
		Port:            3000,
		HTTPPort:        4000,
		Transport:       nodes.TransportTCP,
		RewardAddress:   hashOf(t, "reward"),
		OriginPublicKey: devicePub,
		Certificate:     cert,
	})
	if err != nil {
		t.Fatalf("encode node content failed:%v", err)
	}
	return content
}

func TestValidateNode(t *testing.T) {
	s := newSetup(t)

	chainPub, _, err := crypto.DeriveKeypair([]byte("node chain seed"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)
	if err != nil {
		t.Fatalf("derive failed:%v", err)
	}

	built := s.signedTx(t, "node chain seed", tx.TypeNode,
		tx.Data{Content: nodeContent(t, chainPub)})

	if err := s.v.Validate(built, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}
}

func TestValidateNodeKeyOrigin(t *testing.T) {
	s := newSetup(t)

	chainPub, _, _ := crypto.DeriveKeypair([]byte("node chain seed"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)
	built := s.signedTx(t, "node chain seed", tx.TypeNode,
		tx.Data{Content: nodeContent(t, chainPub)})

	// the signing key is of software origin
	s.network.SetAllowedKeyOrigins([]uint8{crypto.OriginTPM})

	checkRejected(t, s.v.Validate(built, s.now),
		"Invalid node transaction with invalid key origin")
}

func TestValidateNodeContentTooLarge(t *testing.T) {
	s := newSetup(t)

	built := s.signedTx(t, "bloated node", tx.TypeNode,
		tx.Data{Content: bytes.Repeat([]byte{0xAB}, 4*1024*1024)})

	checkRejected(t, s.v.Validate(built, s.now),
		"Invalid node transaction with content size greaterthan content_max_size")
}

func TestValidateNodeBadCertificate(t *testing.T) {
	s := newSetup(t)

	otherPub, _, _ := crypto.DeriveKeypair([]byte("some other key"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)
	built := s.signedTx(t, "node chain seed", tx.TypeNode,
		tx.Data{Content: nodeContent(t, otherPub)})

	checkRejected(t, s.v.Validate(built, s.now),
		"Invalid node transaction with invalid certificate")
}

func TestValidatePreviousSignature(t *testing.T) {
	s := newSetup(t)

	built := s.signedTx(t, "tampered", tx.TypeTransfer, tx.Data{Content: []byte("x")})
	built.Data.Content = []byte("y")

	checkRejected(t, s.v.Validate(built, s.now), "Invalid previous signature")
}

func TestValidateOriginSignature(t *testing.T) {
	s := newSetup(t)

	p := tx.NewParams("unregistered origin")
	p.Data = tx.Data{Content: []byte("x")}
	built, err := tx.GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}
	// the signing origin key is never registered with the pools

	checkRejected(t, s.v.Validate(built, s.now), "Invalid origin signature")
}

func TestValidateOwnerships(t *testing.T) {
	s := newSetup(t)

	authPub, _, _ := crypto.DeriveKeypair([]byte("auth"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)

	built := s.signedTx(t, "empty secret", tx.TypeTransfer, tx.Data{
		Ownerships: []tx.Ownership{{
			AuthorizedKeys: []tx.AuthorizedKey{{PublicKey: authPub, EncryptedKey: []byte("k")}},
		}},
	})
	checkRejected(t, s.v.Validate(built, s.now), "Ownership secret is empty")

	built = s.signedTx(t, "no keys", tx.TypeTransfer, tx.Data{
		Ownerships: []tx.Ownership{{Secret: []byte("sealed")}},
	})
	checkRejected(t, s.v.Validate(built, s.now), "Ownership authorized keys are empty")
}

func TestValidateNodeSharedSecrets(t *testing.T) {
	s := newSetup(t)

	// two currently registered nodes
	var authKeys []tx.AuthorizedKey
	for _, seed := range []string{"member one", "member two"} {
		firstPub, _, _ := crypto.DeriveKeypair([]byte(seed), 0,
			crypto.CurveEd25519, crypto.OriginSoftware)
		lastPub, _, _ := crypto.DeriveKeypair([]byte(seed), 1,
			crypto.CurveEd25519, crypto.OriginSoftware)
		s.table.Add(&nodes.Node{
			FirstPublicKey:  firstPub,
			LastPublicKey:   lastPub,
			IP:              net.IPv4(127, 0, 0, 1),
			Port:            3002,
			Transport:       nodes.TransportTCP,
			RewardAddress:   hashOf(t, seed+" reward"),
			OriginPublicKey: firstPub,
		})
		authKeys = append(authKeys, tx.AuthorizedKey{
			PublicKey:    firstPub,
			EncryptedKey: bytes.Repeat([]byte{1}, 80),
		})
	}

	content := append(hashOf(t, "daily nonce"), hashOf(t, "network seed")...)
	built := s.signedTx(t, "nss chain", tx.TypeNodeSharedSecrets, tx.Data{
		Content:    content,
		Ownerships: []tx.Ownership{{Secret: []byte("sealed nonce"), AuthorizedKeys: authKeys}},
	})

	prevAddress, err := built.PreviousAddress()
	if err != nil {
		t.Fatalf("previous address failed:%v", err)
	}
	s.network.SetNodeSharedSecretsGenesis(prevAddress)

	if err := s.v.Validate(built, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	// a stranger key among the authorized keys is rejected
	strangerPub, _, _ := crypto.DeriveKeypair([]byte("stranger"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)
	bad := s.signedTx(t, "nss chain", tx.TypeNodeSharedSecrets, tx.Data{
		Content: content,
		Ownerships: []tx.Ownership{{
			Secret:         []byte("sealed nonce"),
			AuthorizedKeys: append(authKeys, tx.AuthorizedKey{PublicKey: strangerPub, EncryptedKey: []byte("k")}),
		}},
	})
	checkRejected(t, s.v.Validate(bad, s.now),
		"Invalid node shared secrets transaction authorized nodes")

	// a wrong genesis is rejected
	s.network.SetNodeSharedSecretsGenesis(hashOf(t, "someone else"))
	checkRejected(t, s.v.Validate(built, s.now),
		"Invalid node shared secrets chain address")
}

func TestValidateOrigin(t *testing.T) {
	s := newSetup(t)

	devicePub, _, _ := crypto.DeriveKeypair([]byte("software wallet"), 0,
		crypto.CurveEd25519, crypto.OriginSoftware)
	content := append(devicePub.Marshal(), 0, 0) // empty certificate

	code := []byte("condition inherit: [ type: origin, content: true ]")
	built := s.signedTx(t, "origin chain", tx.TypeOrigin, tx.Data{
		Content: content,
		Code:    code,
	})

	prevAddress, err := built.PreviousAddress()
	if err != nil {
		t.Fatalf("previous address failed:%v", err)
	}
	s.network.AddOriginGenesis(hashOf(t, "other family"), prevAddress)

	if err := s.v.Validate(built, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	// missing inherit condition
	bad := s.signedTx(t, "origin chain", tx.TypeOrigin, tx.Data{Content: content})
	checkRejected(t, s.v.Validate(bad, s.now),
		"Invalid origin transaction inherit condition")

	// unknown genesis
	outsider := s.signedTx(t, "outsider chain", tx.TypeOrigin, tx.Data{
		Content: content,
		Code:    code,
	})
	checkRejected(t, s.v.Validate(outsider, s.now),
		"Invalid origin transaction chain address")
}

func TestValidateCodeApproval(t *testing.T) {
	s := newSetup(t)

	proposal := s.signedTx(t, "proposal chain", tx.TypeCodeProposal,
		tx.Data{Code: []byte("new network code")})
	s.chain.txs[utils.ToHex(proposal.Address)] = proposal

	built := s.signedTx(t, "council member", tx.TypeCodeApproval, tx.Data{
		Recipients: [][]byte{proposal.Address},
	})
	s.pools.Add(pools.TechnicalCouncil, built.PreviousPublicKey)

	if err := s.v.Validate(built, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	// double signing
	s.chain.approvals[approvalKey(proposal.Address, built.PreviousPublicKey)] = true
	checkRejected(t, s.v.Validate(built, s.now),
		"The code proposal has already been signed by the approver")
	delete(s.chain.approvals, approvalKey(proposal.Address, built.PreviousPublicKey))

	// not a council member
	outsider := s.signedTx(t, "outsider", tx.TypeCodeApproval, tx.Data{
		Recipients: [][]byte{proposal.Address},
	})
	checkRejected(t, s.v.Validate(outsider, s.now),
		"The approver is not member of the technical council")

	// unknown proposal
	lost := s.signedTx(t, "council member", tx.TypeCodeApproval, tx.Data{
		Recipients: [][]byte{hashOf(t, "nowhere")},
	})
	checkRejected(t, s.v.Validate(lost, s.now), "The code proposal does not exist")

	// recipients must hold exactly one address
	twice := s.signedTx(t, "council member", tx.TypeCodeApproval, tx.Data{
		Recipients: [][]byte{proposal.Address, proposal.Address},
	})
	checkRejected(t, s.v.Validate(twice, s.now),
		"Invalid code approval transaction recipients")
}

func TestValidateMintRewards(t *testing.T) {
	s := newSetup(t)
	s.chain.burnedFees = 200_000_000

	built := s.signedTx(t, "reward chain", tx.TypeMintRewards, tx.Data{
		Content: []byte(`{"supply":300000000}`),
	})
	prevAddress, err := built.PreviousAddress()
	if err != nil {
		t.Fatalf("previous address failed:%v", err)
	}
	s.network.SetRewardGenesis(prevAddress)

	checkRejected(t, s.v.Validate(built, s.now),
		"The supply do not match burned fees from last summary")

	matching := s.signedTx(t, "reward chain", tx.TypeMintRewards, tx.Data{
		Content: []byte(`{"supply":200000000}`),
	})
	if err := s.v.Validate(matching, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	// a second mint since the last schedule is rejected
	s.chain.lastOfType[tx.TypeMintRewards] = &store.ChainRef{
		Address:   hashOf(t, "already minted"),
		Timestamp: s.now.Add(-time.Hour),
	}
	checkRejected(t, s.v.Validate(matching, s.now),
		"There is already a mint rewards transaction since last schedule")
}

func TestValidateOracleTriggerTime(t *testing.T) {
	s := newSetup(t)
	now := time.Date(2022, 1, 1, 0, 10, 3, 0, time.UTC)

	built := s.signedTx(t, "oracle chain", tx.TypeOracle, tx.Data{
		Content: []byte(`{"uco":{"usd":0.2}}`),
	})

	// another oracle transaction was recorded after the 00:10 trigger
	s.chain.lastOfType[tx.TypeOracle] = &store.ChainRef{
		Address:   hashOf(t, "other oracle"),
		Timestamp: time.Date(2022, 1, 1, 0, 10, 1, 0, time.UTC),
	}
	checkRejected(t, s.v.Validate(built, now), "Invalid oracle trigger time")

	// a transaction recorded before the trigger does not block
	s.chain.lastOfType[tx.TypeOracle].Timestamp = time.Date(2022, 1, 1, 0, 9, 59, 0, time.UTC)
	if err := s.v.Validate(built, now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	// our own predecessor does not block either
	prevAddress, err := built.PreviousAddress()
	if err != nil {
		t.Fatalf("previous address failed:%v", err)
	}
	s.chain.lastOfType[tx.TypeOracle] = &store.ChainRef{
		Address:   prevAddress,
		Timestamp: time.Date(2022, 1, 1, 0, 10, 1, 0, time.UTC),
	}
	if err := s.v.Validate(built, now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}
}

func TestValidateNodeRewardsTriggerTime(t *testing.T) {
	s := newSetup(t)

	built := s.signedTx(t, "node reward chain", tx.TypeNodeRewards, tx.Data{})

	s.chain.lastOfType[tx.TypeNodeRewards] = &store.ChainRef{
		Address:   hashOf(t, "already rewarded"),
		Timestamp: s.now.Add(-time.Minute),
	}
	checkRejected(t, s.v.Validate(built, s.now), "Invalid node rewards trigger time")
}

func TestValidateToken(t *testing.T) {
	s := newSetup(t)

	good := s.signedTx(t, "token chain", tx.TypeToken, tx.Data{
		Content: []byte(`{"supply":100000000,"name":"MyToken","type":"fungible","symbol":"MTK"}`),
	})
	if err := s.v.Validate(good, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}

	for _, content := range []string{
		`not json`,
		`{"name":"NoSupply","type":"fungible","symbol":"NSP"}`,
		`{"supply":1,"name":"BadType","type":"semi-fungible","symbol":"BAD"}`,
		`{"supply":1,"name":"","type":"fungible","symbol":"ANON"}`,
	} {
		bad := s.signedTx(t, "token chain", tx.TypeToken, tx.Data{Content: []byte(content)})
		checkRejected(t, s.v.Validate(bad, s.now), "Invalid token transaction content")
	}

	// a non fungible supply must be a whole number of items
	nft := s.signedTx(t, "token chain", tx.TypeToken, tx.Data{
		Content: []byte(`{"supply":150000000,"name":"Art","type":"non-fungible","symbol":"ART"}`),
	})
	checkRejected(t, s.v.Validate(nft, s.now), "Invalid token transaction supply")

	// a collection must match the item count
	collection := s.signedTx(t, "token chain", tx.TypeToken, tx.Data{
		Content: []byte(`{"supply":200000000,"name":"Art","type":"non-fungible","symbol":"ART",` +
			`"collection":[{"image":"a"}]}`),
	})
	checkRejected(t, s.v.Validate(collection, s.now), "Invalid token transaction supply")

	sized := s.signedTx(t, "token chain", tx.TypeToken, tx.Data{
		Content: []byte(`{"supply":200000000,"name":"Art","type":"non-fungible","symbol":"ART",` +
			`"collection":[{"image":"a"},{"image":"b"}]}`),
	})
	if err := s.v.Validate(sized, s.now); err != nil {
		t.Fatalf("expect acceptance, got %v", err)
	}
}

func TestValidateIdempotence(t *testing.T) {
	s := newSetup(t)

	built := s.signedTx(t, "idempotent", tx.TypeTransfer, tx.Data{Content: []byte("x")})
	first := s.v.Validate(built, s.now)
	second := s.v.Validate(built, s.now)

	if (first == nil) != (second == nil) {
		t.Fatal("validation is not idempotent")
	}
}
