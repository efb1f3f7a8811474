package p2p

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/message"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/pending"
	"github.com/kgricour/archethic-node/store"
	tx "github.com/kgricour/archethic-node/transaction"
	"github.com/kgricour/archethic-node/utils"
)

const bootstrapNodeLimit = 5

// ChainStore is the chain storage slice the dispatcher queries
type ChainStore interface {
	GetTransaction(address []byte) (*tx.Transaction, error)
	TransactionChain(address []byte, after time.Time) ([]*tx.Transaction, error)
	ChainLength(address []byte) (uint32, error)
	FirstPublicKey(address []byte) (*crypto.PublicKey, error)
	LastChainAddress(address []byte) (*store.ChainRef, error)
	LastChainAddressBefore(address []byte, before time.Time) (*store.ChainRef, error)
}

// Ledger answers the balance and input queries of the wire protocol
type Ledger interface {
	Balance(address []byte) (uint64, map[string]uint64)
	Inputs(address []byte) []store.LedgerInput
}

// Miner is the mining coordinator consumed fire-and-forget
type Miner interface {
	SubmitTransaction(t *tx.Transaction) error
	StartMining(m *message.StartMining) error
	AddMiningContext(m *message.AddMiningContext) error
	CrossValidate(m *message.CrossValidate) error
	CrossValidationDone(m *message.CrossValidationDone) error
}

// HandlerConfig bundles the collaborators of the dispatcher
type HandlerConfig struct {
	Network      *params.Network
	Chain        ChainStore
	Ledger       Ledger
	Table        *nodes.Table
	Miner        Miner
	Validator    *pending.Validator
	Bus          *PubSub
	StorageNonce []byte
	Clock        func() time.Time
}

// Handler maps each decoded request to the response of its fixed
// response set; any other outcome is a programming error surfacing as a
// connection failure
type Handler struct {
	HandlerConfig
	logger *logrus.Entry
}

func NewHandler(c HandlerConfig) *Handler {
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Handler{
		HandlerConfig: c,
		logger:        logrus.WithField("component", "p2p"),
	}
}

// Process serves one request; the returned error tears the connection
// down, a returned Error frame keeps it alive
func (h *Handler) Process(ctx context.Context, req message.Message) (message.Message, error) {
	switch m := req.(type) {
	case *message.Ping:
		return &message.Ok{}, nil

	case *message.GetBootstrappingNodes:
		return h.bootstrappingNodes(m), nil

	case *message.GetStorageNonce:
		sealed, err := crypto.EncryptStorageNonce(h.StorageNonce, m.PublicKey)
		if err != nil {
			return nil, err
		}
		return &message.EncryptedStorageNonce{Nonce: sealed}, nil

	case *message.ListNodes:
		return &message.NodeList{Nodes: h.Table.List()}, nil

	case *message.GetTransaction:
		return h.transactionOrNotFound(m.Address)

	case *message.GetTransactionChain:
		after := time.Time{}
		if m.HasAfter {
			after = time.Unix(int64(m.After), 0).UTC()
		}
		chain, err := h.Chain.TransactionChain(m.Address, after)
		if err != nil {
			return nil, err
		}
		return &message.TransactionList{Transactions: chain}, nil

	case *message.GetUnspentOutputs:
		return h.unspentOutputs(m.Address), nil

	case *message.NewTransaction:
		return h.newTransaction(ctx, m)

	case *message.StartMining:
		if err := h.Miner.StartMining(m); err != nil {
			return nil, err
		}
		return &message.Ok{}, nil

	case *message.AddMiningContext:
		if err := h.Miner.AddMiningContext(m); err != nil {
			return nil, err
		}
		return &message.Ok{}, nil

	case *message.CrossValidate:
		if err := h.Miner.CrossValidate(m); err != nil {
			return nil, err
		}
		return &message.Ok{}, nil

	case *message.CrossValidationDone:
		if err := h.Miner.CrossValidationDone(m); err != nil {
			return nil, err
		}
		return &message.Ok{}, nil

	case *message.ReplicateTransaction:
		if err := h.Miner.SubmitTransaction(m.Transaction); err != nil {
			return &message.Error{Reason: message.ReasonInvalidTransaction}, nil
		}
		return &message.Ok{}, nil

	case *message.AcknowledgeStorage:
		h.Bus.Publish(TopicStorageAcknowledged(m.Address))
		return &message.Ok{}, nil

	case *message.NotifyEndOfNodeSync:
		h.Bus.Publish(TopicNodeSynced())
		return &message.Ok{}, nil

	case *message.GetLastTransaction:
		ref, err := h.Chain.LastChainAddress(m.Address)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			return &message.NotFound{}, nil
		}
		return h.transactionOrNotFound(ref.Address)

	case *message.GetBalance:
		return h.balance(m.Address)

	case *message.GetTransactionInputs:
		return h.transactionInputs(m.Address), nil

	case *message.GetTransactionChainLength:
		length, err := h.Chain.ChainLength(m.Address)
		if err != nil {
			return nil, err
		}
		return &message.TransactionChainLength{Length: length}, nil

	case *message.GetP2PView:
		return &message.P2PView{AvailableNodes: h.Table.AvailabilityBits(m.NodePublicKeys)}, nil

	case *message.GetFirstPublicKey:
		key, err := h.Chain.FirstPublicKey(m.Address)
		if err == store.ErrNotFound {
			return &message.NotFound{}, nil
		}
		if err != nil {
			return nil, err
		}
		return &message.FirstPublicKey{PublicKey: key}, nil

	case *message.GetLastTransactionAddress:
		ref, err := h.Chain.LastChainAddressBefore(m.Address, time.Unix(int64(m.Timestamp), 0).UTC())
		if err != nil {
			return nil, err
		}
		if ref == nil {
			// no newer record, the requested address stays the last one
			return &message.LastTransactionAddress{Address: m.Address}, nil
		}
		return &message.LastTransactionAddress{Address: ref.Address}, nil

	case *message.NotifyLastTransactionAddress:
		h.Bus.Publish(TopicStorageAcknowledged(m.Address))
		return &message.Ok{}, nil

	case *message.GetTransactionSummary:
		return h.transactionSummary(m.Address)

	case *message.NodeAvailability:
		h.Table.SetGloballyAvailable(m.PublicKey)
		return &message.Ok{}, nil

	default:
		return nil, fmt.Errorf("unexpected frame %s", req)
	}
}

func (h *Handler) bootstrappingNodes(m *message.GetBootstrappingNodes) *message.BootstrappingNodes {
	seeds := h.Table.Authorized()
	if len(seeds) > bootstrapNodeLimit {
		seeds = seeds[:bootstrapNodeLimit]
	}

	closest := h.Table.Nearest(m.Patch)
	if len(closest) > bootstrapNodeLimit {
		closest = closest[:bootstrapNodeLimit]
	}

	return &message.BootstrappingNodes{
		NewSeeds:     seeds,
		ClosestNodes: closest,
	}
}

func (h *Handler) transactionOrNotFound(address []byte) (message.Message, error) {
	t, err := h.Chain.GetTransaction(address)
	if err == store.ErrNotFound {
		return &message.NotFound{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &message.Transaction{Transaction: t}, nil
}

// newTransaction validates the pending transaction, hands it to the
// mining coordinator and awaits the acceptance event; the subscription
// is released on every exit path
func (h *Handler) newTransaction(ctx context.Context, m *message.NewTransaction) (message.Message, error) {
	if err := h.Validator.Validate(m.Transaction, h.Clock()); err != nil {
		h.logger.Infof("transaction %v rejected:%v", m.Transaction, err)
		return &message.Error{Reason: message.ReasonInvalidTransaction}, nil
	}

	accepted, cancel := h.Bus.SubscribeOnce(TopicTransactionAccepted(m.Transaction.Address))
	defer cancel()

	if err := h.Miner.SubmitTransaction(m.Transaction); err != nil {
		return &message.Error{Reason: message.ReasonInvalidTransaction}, nil
	}

	timer := time.NewTimer(h.Network.MiningTimeout())
	defer timer.Stop()

	select {
	case <-accepted:
		return &message.Ok{}, nil
	case <-timer.C:
		return &message.Error{Reason: message.ReasonNetworkIssue}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handler) balance(address []byte) (message.Message, error) {
	uco, tokens := h.Ledger.Balance(address)

	result := &message.Balance{UCO: uco}
	names := make([]string, 0, len(tokens))
	for token := range tokens {
		names = append(names, token)
	}
	sort.Strings(names)
	for _, token := range names {
		addr, err := utils.FromHex(token)
		if err != nil {
			return nil, err
		}
		result.Tokens = append(result.Tokens, message.TokenBalance{
			Address: addr,
			Amount:  tokens[token],
		})
	}
	return result, nil
}

func (h *Handler) unspentOutputs(address []byte) *message.UnspentOutputList {
	result := &message.UnspentOutputList{}
	for _, input := range h.Ledger.Inputs(address) {
		if input.Spent {
			continue
		}
		result.UnspentOutputs = append(result.UnspentOutputs, toUnspentOutput(input))
	}
	return result
}

func (h *Handler) transactionInputs(address []byte) *message.TransactionInputList {
	result := &message.TransactionInputList{}
	for _, input := range h.Ledger.Inputs(address) {
		result.Inputs = append(result.Inputs, &message.TransactionInput{
			UnspentOutput: *toUnspentOutput(input),
			Spent:         input.Spent,
			Timestamp:     uint32(input.Timestamp.Unix()),
		})
	}
	return result
}

func toUnspentOutput(input store.LedgerInput) *message.UnspentOutput {
	utxo := &message.UnspentOutput{
		From:   input.From,
		Amount: input.Amount,
		Type:   message.UTXOUco,
	}
	if len(input.TokenAddress) > 0 {
		utxo.Type = message.UTXOToken
		utxo.TokenAddress = input.TokenAddress
		utxo.TokenID = input.TokenID
	}
	return utxo
}

func (h *Handler) transactionSummary(address []byte) (message.Message, error) {
	t, err := h.Chain.GetTransaction(address)
	if err == store.ErrNotFound {
		return &message.NotFound{}, nil
	}
	if err != nil {
		return nil, err
	}

	summary := &message.TransactionSummary{
		Address: t.Address,
		Type:    t.Type,
	}
	for _, transfer := range t.Data.Ledger.UCO {
		summary.MovementsAddresses = append(summary.MovementsAddresses, transfer.To)
	}
	for _, transfer := range t.Data.Ledger.Token {
		summary.MovementsAddresses = append(summary.MovementsAddresses, transfer.To)
	}
	return summary, nil
}
