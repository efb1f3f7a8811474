package p2p

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/message"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/pending"
	"github.com/kgricour/archethic-node/pools"
	"github.com/kgricour/archethic-node/scheduling"
	"github.com/kgricour/archethic-node/store"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

// fakeChain backs the dispatcher tests without a disk store
type fakeChain struct {
	txs    map[string]*tx.Transaction
	chains map[string][]*tx.Transaction
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		txs:    make(map[string]*tx.Transaction),
		chains: make(map[string][]*tx.Transaction),
	}
}

func (f *fakeChain) put(t *tx.Transaction) {
	f.txs[utils.ToHex(t.Address)] = t
}

func (f *fakeChain) GetTransaction(address []byte) (*tx.Transaction, error) {
	if t, ok := f.txs[utils.ToHex(address)]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeChain) TransactionChain(address []byte, after time.Time) ([]*tx.Transaction, error) {
	return f.chains[utils.ToHex(address)], nil
}

func (f *fakeChain) ChainLength(address []byte) (uint32, error) {
	return uint32(len(f.chains[utils.ToHex(address)])), nil
}

func (f *fakeChain) FirstPublicKey(address []byte) (*crypto.PublicKey, error) {
	chain := f.chains[utils.ToHex(address)]
	if len(chain) == 0 {
		return nil, store.ErrNotFound
	}
	return chain[0].PreviousPublicKey, nil
}

func (f *fakeChain) LastChainAddress(address []byte) (*store.ChainRef, error) {
	chain := f.chains[utils.ToHex(address)]
	if len(chain) == 0 {
		return nil, nil
	}
	last := chain[len(chain)-1]
	return &store.ChainRef{Address: last.Address}, nil
}

func (f *fakeChain) LastChainAddressBefore(address []byte, before time.Time) (*store.ChainRef, error) {
	return f.LastChainAddress(address)
}

// fakeMiner records submissions and optionally publishes acceptance
type fakeMiner struct {
	bus       *PubSub
	accept    bool
	submitted []*tx.Transaction
	started   int
}

func (m *fakeMiner) SubmitTransaction(t *tx.Transaction) error {
	m.submitted = append(m.submitted, t)
	if m.accept {
		m.bus.Publish(TopicTransactionAccepted(t.Address))
	}
	return nil
}

func (m *fakeMiner) StartMining(*message.StartMining) error                 { m.started++; return nil }
func (m *fakeMiner) AddMiningContext(*message.AddMiningContext) error       { return nil }
func (m *fakeMiner) CrossValidate(*message.CrossValidate) error             { return nil }
func (m *fakeMiner) CrossValidationDone(*message.CrossValidationDone) error { return nil }

type handlerSetup struct {
	handler *Handler
	chain   *fakeChain
	ledger  *store.MemLedger
	table   *nodes.Table
	miner   *fakeMiner
	pools   *pools.MemTable
	network *params.Network
}

func newHandlerSetup(t *testing.T) *handlerSetup {
	network := params.NewNetwork()
	network.SetMiningTimeout(200 * time.Millisecond)

	chain := newFakeChain()
	table := nodes.NewTable()
	poolTable := pools.NewMemTable()
	schedulers := scheduling.NewRegistry()
	if err := schedulers.Register(tx.TypeOracle, params.CronOracle); err != nil {
		t.Fatalf("register schedule failed:%v", err)
	}

	bus := NewPubSub()
	miner := &fakeMiner{bus: bus}

	validator := pending.NewValidator(network, &validatorChain{chain}, table, poolTable, schedulers)

	handler := NewHandler(HandlerConfig{
		Network:      network,
		Chain:        chain,
		Ledger:       store.NewMemLedger(),
		Table:        table,
		Miner:        miner,
		Validator:    validator,
		Bus:          bus,
		StorageNonce: []byte("storage nonce"),
		Clock:        func() time.Time { return time.Date(2022, 6, 15, 10, 30, 0, 0, time.UTC) },
	})

	return &handlerSetup{
		handler: handler,
		chain:   chain,
		ledger:  handler.Ledger.(*store.MemLedger),
		table:   table,
		miner:   miner,
		pools:   poolTable,
		network: network,
	}
}

// validatorChain adapts the dispatcher fake to the validator interface
type validatorChain struct {
	*fakeChain
}

func (v *validatorChain) TransactionExists(address []byte) (bool, error) {
	_, ok := v.txs[utils.ToHex(address)]
	return ok, nil
}

func (v *validatorChain) LastAddressOfType(tx.Type) (*store.ChainRef, error) {
	return nil, nil
}

func (v *validatorChain) CodeProposalSignedBy([]byte, *crypto.PublicKey) (bool, error) {
	return false, nil
}

func (v *validatorChain) LatestBurnedFees() (uint64, error) {
	return 0, nil
}

func (s *handlerSetup) signedTx(t *testing.T, seed string) *tx.Transaction {
	p := tx.NewParams(seed)
	p.Data = tx.Data{Content: []byte("content")}
	built, err := tx.GenFromParams(p)
	if err != nil {
		t.Fatalf("gen transaction failed:%v", err)
	}
	s.pools.Add(pools.OriginKeys, p.OriginPublicKey)
	return built
}

func process(t *testing.T, h *Handler, req message.Message) message.Message {
	t.Helper()
	resp, err := h.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process %s failed:%v", req, err)
	}
	return resp
}

func TestProcessPing(t *testing.T) {
	s := newHandlerSetup(t)
	if _, ok := process(t, s.handler, &message.Ping{}).(*message.Ok); !ok {
		t.Fatal("expect Ok")
	}
}

func TestProcessGetTransaction(t *testing.T) {
	s := newHandlerSetup(t)
	built := s.signedTx(t, "lookup")
	s.chain.put(built)

	resp := process(t, s.handler, &message.GetTransaction{Address: built.Address})
	found, ok := resp.(*message.Transaction)
	if !ok {
		t.Fatalf("expect Transaction, got %s", resp)
	}
	if !found.Transaction.Equal(built) {
		t.Fatal("returned transaction differs")
	}

	missing, _ := crypto.Hash(crypto.SHA256, []byte("missing"))
	if _, ok := process(t, s.handler, &message.GetTransaction{Address: missing}).(*message.NotFound); !ok {
		t.Fatal("expect NotFound")
	}
}

func TestProcessNewTransactionAccepted(t *testing.T) {
	s := newHandlerSetup(t)
	s.miner.accept = true
	built := s.signedTx(t, "accepted")

	resp := process(t, s.handler, &message.NewTransaction{Transaction: built})
	if _, ok := resp.(*message.Ok); !ok {
		t.Fatalf("expect Ok, got %s", resp)
	}
	if err := utils.TCheckInt("submissions", 1, len(s.miner.submitted)); err != nil {
		t.Fatal(err)
	}
}

func TestProcessNewTransactionTimeout(t *testing.T) {
	s := newHandlerSetup(t)
	s.miner.accept = false
	built := s.signedTx(t, "stuck")

	resp := process(t, s.handler, &message.NewTransaction{Transaction: built})
	failure, ok := resp.(*message.Error)
	if !ok {
		t.Fatalf("expect Error, got %s", resp)
	}
	if err := utils.TCheckUint8("reason", message.ReasonNetworkIssue, failure.Reason); err != nil {
		t.Fatal(err)
	}
}

func TestProcessNewTransactionRejected(t *testing.T) {
	s := newHandlerSetup(t)
	built := s.signedTx(t, "invalid")
	built.Data.Content = []byte("tampered after signing")

	resp := process(t, s.handler, &message.NewTransaction{Transaction: built})
	failure, ok := resp.(*message.Error)
	if !ok {
		t.Fatalf("expect Error, got %s", resp)
	}
	if err := utils.TCheckUint8("reason", message.ReasonInvalidTransaction, failure.Reason); err != nil {
		t.Fatal(err)
	}
	if err := utils.TCheckInt("submissions", 0, len(s.miner.submitted)); err != nil {
		t.Fatal(err)
	}
}

func TestProcessNewTransactionCancelled(t *testing.T) {
	s := newHandlerSetup(t)
	built := s.signedTx(t, "cancelled")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := s.handler.Process(ctx, &message.NewTransaction{Transaction: built}); err == nil {
		t.Fatal("expect cancellation to surface as an error")
	}
}

func TestProcessNodeAvailability(t *testing.T) {
	s := newHandlerSetup(t)

	firstPub, _, _ := crypto.DeriveKeypair([]byte("member"), 0, crypto.CurveEd25519, crypto.OriginSoftware)
	lastPub, _, _ := crypto.DeriveKeypair([]byte("member"), 1, crypto.CurveEd25519, crypto.OriginSoftware)
	reward, _ := crypto.Hash(crypto.SHA256, []byte("reward"))
	s.table.Add(&nodes.Node{
		FirstPublicKey:  firstPub,
		LastPublicKey:   lastPub,
		IP:              net.IPv4(127, 0, 0, 1),
		Port:            3002,
		Transport:       nodes.TransportTCP,
		RewardAddress:   reward,
		OriginPublicKey: firstPub,
	})

	if _, ok := process(t, s.handler, &message.NodeAvailability{PublicKey: firstPub}).(*message.Ok); !ok {
		t.Fatal("expect Ok")
	}

	info, _ := s.table.Info(firstPub)
	if !info.Available {
		t.Fatal("availability transition not applied")
	}

	resp := process(t, s.handler, &message.GetP2PView{NodePublicKeys: []*crypto.PublicKey{firstPub}})
	view := resp.(*message.P2PView).AvailableNodes
	if len(view) != 1 || !view[0] {
		t.Fatal("expect the node to be seen available")
	}
}

func TestProcessGetStorageNonce(t *testing.T) {
	s := newHandlerSetup(t)

	nodePub, nodePriv, _ := crypto.DeriveKeypair([]byte("requester"), 0,
		crypto.CurveSecp256k1, crypto.OriginSoftware)

	resp := process(t, s.handler, &message.GetStorageNonce{PublicKey: nodePub})
	sealed, ok := resp.(*message.EncryptedStorageNonce)
	if !ok {
		t.Fatalf("expect EncryptedStorageNonce, got %s", resp)
	}

	opened, err := crypto.ECDecrypt(sealed.Nonce, nodePriv)
	if err != nil {
		t.Fatalf("decrypt failed:%v", err)
	}
	if err := utils.TCheckBytes("nonce", []byte("storage nonce"), opened); err != nil {
		t.Fatal(err)
	}
}

func TestProcessBalance(t *testing.T) {
	s := newHandlerSetup(t)
	built := s.signedTx(t, "payer")
	to, _ := crypto.Hash(crypto.SHA256, []byte("beneficiary"))
	built.Data.Ledger.UCO = []tx.UCOTransfer{{To: to, Amount: 4_200_000_000}}
	s.ledger.ApplyTransaction(built, time.Unix(1000, 0))

	resp := process(t, s.handler, &message.GetBalance{Address: to})
	balance, ok := resp.(*message.Balance)
	if !ok {
		t.Fatalf("expect Balance, got %s", resp)
	}
	if err := utils.TCheckUint64("uco", 4_200_000_000, balance.UCO); err != nil {
		t.Fatal(err)
	}

	inputs := process(t, s.handler, &message.GetTransactionInputs{Address: to})
	if err := utils.TCheckInt("inputs", 1, len(inputs.(*message.TransactionInputList).Inputs)); err != nil {
		t.Fatal(err)
	}

	utxos := process(t, s.handler, &message.GetUnspentOutputs{Address: to})
	if err := utils.TCheckInt("utxos", 1, len(utxos.(*message.UnspentOutputList).UnspentOutputs)); err != nil {
		t.Fatal(err)
	}
}

func TestPubSubScopedSubscription(t *testing.T) {
	bus := NewPubSub()
	addr := []byte{0, 1, 2}

	ch, cancel := bus.SubscribeOnce(TopicTransactionAccepted(addr))
	cancel()
	bus.Publish(TopicTransactionAccepted(addr))

	select {
	case <-ch:
		t.Fatal("cancelled subscription must not fire")
	case <-time.After(20 * time.Millisecond):
	}

	ch, cancel = bus.SubscribeOnce(TopicTransactionAccepted(addr))
	defer cancel()
	bus.Publish(TopicTransactionAccepted(addr))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expect the subscription to fire")
	}

	// cancel after publish stays safe
	cancel()
}
