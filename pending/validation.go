/*
Package pending gates every transaction before it is promoted to
mining. The checks are stateless apart from a few well defined lookups;
rejections are short stable English messages that clients match on.
*/
package pending

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/pools"
	"github.com/kgricour/archethic-node/store"
	tx "github.com/kgricour/archethic-node/transaction"
)

// ChainStore is the slice of chain storage the validator consults
type ChainStore interface {
	GetTransaction(address []byte) (*tx.Transaction, error)
	TransactionExists(address []byte) (bool, error)
	FirstPublicKey(address []byte) (*crypto.PublicKey, error)
	LastAddressOfType(txType tx.Type) (*store.ChainRef, error)
	CodeProposalSignedBy(proposal []byte, signer *crypto.PublicKey) (bool, error)
	LatestBurnedFees() (uint64, error)
}

// NodeDirectory answers membership questions about the node table
type NodeDirectory interface {
	HasFirstKey(key *crypto.PublicKey) bool
}

// PoolTable answers membership questions about the governance pools
type PoolTable interface {
	Members(pool pools.Pool) []*crypto.PublicKey
	IsMember(pool pools.Pool, key *crypto.PublicKey) bool
}

// TriggerSource computes the last expected trigger of a scheduled type
type TriggerSource interface {
	LastTriggerAt(txType tx.Type, now time.Time) (time.Time, error)
}

// Validator runs the admission checks over pending transactions.
// It never mutates persistent state; concurrent validations of
// distinct transactions are safe.
type Validator struct {
	network    *params.Network
	chain      ChainStore
	nodes      NodeDirectory
	pools      PoolTable
	schedulers TriggerSource
	logger     *logrus.Entry
}

func NewValidator(network *params.Network, chain ChainStore, directory NodeDirectory,
	poolTable PoolTable, schedulers TriggerSource) *Validator {
	return &Validator{
		network:    network,
		chain:      chain,
		nodes:      directory,
		pools:      poolTable,
		schedulers: schedulers,
		logger:     logrus.WithField("component", "pending"),
	}
}

// Validate runs every admission check over the transaction as of now;
// a nil result promotes the transaction to mining
func (v *Validator) Validate(t *tx.Transaction, now time.Time) error {
	if err := v.validate(t, now); err != nil {
		v.logger.Debugf("rejected %v:%v", t, err)
		return err
	}
	return nil
}

func (v *Validator) validate(t *tx.Transaction, now time.Time) error {
	if !t.VerifyPreviousSignature() {
		return errors.New("Invalid previous signature")
	}

	if !v.verifyOriginSignature(t) {
		return errors.New("Invalid origin signature")
	}

	if len(t.Data.Content) > v.network.ContentMaxSize() {
		return fmt.Errorf("Invalid %s transaction with content size greaterthan content_max_size",
			tx.TypeName(t.Type))
	}

	for _, ownership := range t.Data.Ownerships {
		if len(ownership.Secret) == 0 {
			return errors.New("Ownership secret is empty")
		}
		if len(ownership.AuthorizedKeys) == 0 {
			return errors.New("Ownership authorized keys are empty")
		}
	}

	if err := v.checkKeyOrigin(t); err != nil {
		return err
	}

	switch t.Type {
	case tx.TypeNode:
		return v.validateNode(t)
	case tx.TypeNodeSharedSecrets:
		return v.validateNodeSharedSecrets(t, now)
	case tx.TypeOrigin:
		return v.validateOrigin(t)
	case tx.TypeCodeApproval:
		return v.validateCodeApproval(t)
	case tx.TypeMintRewards:
		return v.validateMintRewards(t, now)
	case tx.TypeNodeRewards:
		return v.checkTriggerWindow(t, now, "Invalid node rewards trigger time")
	case tx.TypeOracle:
		return v.checkTriggerWindow(t, now, "Invalid oracle trigger time")
	case tx.TypeToken:
		return v.validateToken(t)
	default:
		return nil
	}
}

// verifyOriginSignature resolves the origin signature against the
// recognized origin device keys
func (v *Validator) verifyOriginSignature(t *tx.Transaction) bool {
	for _, key := range v.pools.Members(pools.OriginKeys) {
		if t.VerifyOriginSignature(key) {
			return true
		}
	}
	return false
}

func (v *Validator) checkKeyOrigin(t *tx.Transaction) error {
	allowed := v.network.AllowedKeyOrigins()
	if len(allowed) == 0 {
		return nil
	}

	for _, origin := range allowed {
		if t.PreviousPublicKey.Origin == origin {
			return nil
		}
	}
	return fmt.Errorf("Invalid %s transaction with invalid key origin", tx.TypeName(t.Type))
}

func (v *Validator) validateNode(t *tx.Transaction) error {
	content, err := nodes.DecodeContent(t.Data.Content)
	if err != nil {
		return errors.New("Invalid node transaction content")
	}

	if !crypto.VerifyCertificate(t.PreviousPublicKey, content.Certificate, content.OriginPublicKey) {
		return errors.New("Invalid node transaction with invalid certificate")
	}
	return nil
}

func (v *Validator) validateNodeSharedSecrets(t *tx.Transaction, now time.Time) error {
	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}
	if !bytes.Equal(prevAddress, v.network.NodeSharedSecretsGenesis()) {
		return errors.New("Invalid node shared secrets chain address")
	}

	for _, ownership := range t.Data.Ownerships {
		for _, ak := range ownership.AuthorizedKeys {
			if !v.nodes.HasFirstKey(ak.PublicKey) {
				return errors.New("Invalid node shared secrets transaction authorized nodes")
			}
		}
	}

	// the content carries the daily nonce digest then the network seed digest
	r := bytes.NewReader(t.Data.Content)
	for i := 0; i < 2; i++ {
		if _, err := crypto.ReadHash(r); err != nil {
			return errors.New("Invalid node shared secrets transaction content")
		}
	}
	if r.Len() != 0 {
		return errors.New("Invalid node shared secrets transaction content")
	}

	return v.checkTriggerWindow(t, now, "Invalid node shared secrets trigger time")
}

func (v *Validator) validateOrigin(t *tx.Transaction) error {
	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}

	member := false
	for _, genesis := range v.network.OriginGenesis() {
		if bytes.Equal(prevAddress, genesis) {
			member = true
			break
		}
	}
	if !member {
		return errors.New("Invalid origin transaction chain address")
	}

	r := bytes.NewReader(t.Data.Content)
	devicePub, err := crypto.ReadPublicKey(r)
	if err != nil {
		return errors.New("Invalid origin transaction content")
	}
	var certLen uint16
	if err := binary.Read(r, binary.BigEndian, &certLen); err != nil {
		return errors.New("Invalid origin transaction content")
	}
	cert := make([]byte, certLen)
	if _, err := io.ReadFull(r, cert); err != nil {
		return errors.New("Invalid origin transaction content")
	}
	if r.Len() != 0 {
		return errors.New("Invalid origin transaction content")
	}

	if !v.verifyDeviceCertificate(devicePub, cert) {
		return errors.New("Invalid origin transaction with invalid certificate")
	}

	if !declaresOriginInheritCondition(string(t.Data.Code)) {
		return errors.New("Invalid origin transaction inherit condition")
	}
	return nil
}

func (v *Validator) verifyDeviceCertificate(devicePub *crypto.PublicKey, cert []byte) bool {
	if len(cert) == 0 {
		return crypto.VerifyCertificate(devicePub, nil, nil)
	}
	for _, root := range v.pools.Members(pools.OriginKeys) {
		if crypto.VerifyCertificate(devicePub, cert, root) {
			return true
		}
	}
	return false
}

// declaresOriginInheritCondition checks the contract source pins the
// origin chain: condition inherit: [type: origin, content: true]
func declaresOriginInheritCondition(code string) bool {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, code)
	return strings.Contains(normalized, "conditioninherit:[type:origin,content:true]")
}

func (v *Validator) validateCodeApproval(t *tx.Transaction) error {
	if len(t.Data.Recipients) != 1 {
		return errors.New("Invalid code approval transaction recipients")
	}
	proposalAddress := t.Data.Recipients[0]

	proposal, err := v.chain.GetTransaction(proposalAddress)
	if err == store.ErrNotFound {
		return errors.New("The code proposal does not exist")
	}
	if err != nil {
		return err
	}
	if proposal.Type != tx.TypeCodeProposal {
		return errors.New("The code proposal does not exist")
	}

	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}
	firstKey, err := v.chain.FirstPublicKey(prevAddress)
	if err == store.ErrNotFound {
		// an unseen chain starts with the submitted key
		firstKey = t.PreviousPublicKey
	} else if err != nil {
		return err
	}

	signed, err := v.chain.CodeProposalSignedBy(proposalAddress, firstKey)
	if err != nil {
		return err
	}
	if signed {
		return errors.New("The code proposal has already been signed by the approver")
	}

	if !v.pools.IsMember(pools.TechnicalCouncil, firstKey) {
		return errors.New("The approver is not member of the technical council")
	}
	return nil
}

func (v *Validator) validateMintRewards(t *tx.Transaction, now time.Time) error {
	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}
	if !bytes.Equal(prevAddress, v.network.RewardGenesis()) {
		return errors.New("Invalid mint rewards chain address")
	}

	var content struct {
		Supply *uint64 `json:"supply"`
	}
	if err := json.Unmarshal(t.Data.Content, &content); err != nil || content.Supply == nil {
		return errors.New("Invalid mint rewards transaction content")
	}

	burned, err := v.chain.LatestBurnedFees()
	if err != nil {
		return err
	}
	if *content.Supply != burned {
		return errors.New("The supply do not match burned fees from last summary")
	}

	return v.checkTriggerWindow(t, now,
		"There is already a mint rewards transaction since last schedule")
}

// checkTriggerWindow enforces at most one transaction of a scheduled
// type per trigger: a transaction recorded since the last expected
// trigger that is not our own predecessor blocks the admission
func (v *Validator) checkTriggerWindow(t *tx.Transaction, now time.Time, msg string) error {
	last, err := v.chain.LastAddressOfType(t.Type)
	if err != nil {
		return err
	}
	if last == nil {
		return nil
	}

	trigger, err := v.schedulers.LastTriggerAt(t.Type, now)
	if err != nil {
		return err
	}
	if last.Timestamp.Before(trigger) {
		return nil
	}

	prevAddress, err := t.PreviousAddress()
	if err != nil {
		return err
	}
	if !bytes.Equal(last.Address, prevAddress) {
		return errors.New(msg)
	}
	return nil
}

type tokenContent struct {
	Supply     *uint64                  `json:"supply"`
	Name       string                   `json:"name"`
	Type       string                   `json:"type"`
	Symbol     string                   `json:"symbol"`
	Properties map[string]interface{}   `json:"properties"`
	Collection []map[string]interface{} `json:"collection"`
}

func (v *Validator) validateToken(t *tx.Transaction) error {
	var content tokenContent
	if err := json.Unmarshal(t.Data.Content, &content); err != nil {
		return errors.New("Invalid token transaction content")
	}

	if content.Supply == nil || content.Name == "" || content.Symbol == "" {
		return errors.New("Invalid token transaction content")
	}
	if content.Type != "fungible" && content.Type != "non-fungible" {
		return errors.New("Invalid token transaction content")
	}

	if content.Type == "non-fungible" {
		if *content.Supply%100_000_000 != 0 {
			return errors.New("Invalid token transaction supply")
		}
		if content.Collection != nil &&
			uint64(len(content.Collection)) != *content.Supply/100_000_000 {
			return errors.New("Invalid token transaction supply")
		}
	}
	return nil
}
