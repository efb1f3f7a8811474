package main

import (
	"crypto/rand"
	"flag"
	"io/ioutil"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p"
	"github.com/kgricour/archethic-node/p2p/message"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/params"
	"github.com/kgricour/archethic-node/pending"
	"github.com/kgricour/archethic-node/pools"
	"github.com/kgricour/archethic-node/scheduling"
	"github.com/kgricour/archethic-node/store"
	tx "github.com/kgricour/archethic-node/transaction"
)

var logger = logrus.WithField("component", "node")

func main() {
	cf := flag.String("c", "", "config file")
	flag.Parse()

	conf, err := parseConfig(*cf)
	if err != nil {
		logrus.Fatal(err)
	}

	level, _ := logrus.ParseLevel(conf.LogLevel)
	logrus.SetLevel(level)

	// load the node master seed
	var seed []byte
	if conf.Key.Type == crypto.PlainSeedType {
		if seed, err = crypto.RestorePlainSeed(conf.Key.Path); err != nil {
			logger.Fatalf("restore plain seed failed:%v", err)
		}
	} else {
		if seed, err = crypto.RestoreSealedSeed(conf.Key.Path); err != nil {
			logger.Fatalf("restore sealed seed failed:%v", err)
		}
	}

	firstPub, _, err := crypto.DeriveKeypair(seed, 0, crypto.CurveSecp256k1, crypto.OriginSoftware)
	if err != nil {
		logger.Fatalf("derive node key failed:%v", err)
	}
	logger.Infof("node first public key %s", firstPub)

	network := params.NewNetwork()
	if conf.ContentMaxSize > 0 {
		network.SetContentMaxSize(conf.ContentMaxSize)
	}
	if conf.MiningTimeoutSecs > 0 {
		network.SetMiningTimeout(time.Duration(conf.MiningTimeoutSecs) * time.Second)
	}
	network.SetAllowedKeyOrigins(conf.keyOrigins())

	chainStore, err := store.NewBadger(conf.DataPath)
	if err != nil {
		logger.Fatalf("open chain store failed:%v", err)
	}

	schedulers := scheduling.NewRegistry()
	for txType, spec := range map[tx.Type]string{
		tx.TypeNodeSharedSecrets: params.CronNodeSharedSecrets,
		tx.TypeOracle:            params.CronOracle,
		tx.TypeMintRewards:       params.CronMintRewards,
		tx.TypeNodeRewards:       params.CronNodeRewards,
	} {
		if err := schedulers.Register(txType, spec); err != nil {
			logger.Fatalf("register schedule failed:%v", err)
		}
	}

	table := nodes.NewTable()
	poolTable := pools.NewMemTable()
	ledger := store.NewMemLedger()
	bus := p2p.NewPubSub()

	validator := pending.NewValidator(network, chainStore, table, poolTable, schedulers)

	handler := p2p.NewHandler(p2p.HandlerConfig{
		Network:      network,
		Chain:        chainStore,
		Ledger:       ledger,
		Table:        table,
		Miner:        &localMiner{bus: bus, chain: chainStore, ledger: ledger},
		Validator:    validator,
		Bus:          bus,
		StorageNonce: loadStorageNonce(conf.DataPath),
	})

	ip := net.ParseIP(conf.IP)
	service := p2p.NewService(ip, conf.Port, handler)
	if !service.Start() {
		logger.Fatal("start p2p service failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	service.Stop()
	chainStore.Close()
}

// localMiner stands in for the mining coordinator on single node
// deployments: replicated transactions are stored directly and the
// acceptance event fires as soon as the record lands
type localMiner struct {
	bus    *p2p.PubSub
	chain  store.Store
	ledger *store.MemLedger
}

func (m *localMiner) SubmitTransaction(t *tx.Transaction) error {
	now := time.Now().UTC()
	if err := m.chain.PutTransaction(t, now); err != nil {
		return err
	}
	m.ledger.ApplyTransaction(t, now)
	m.bus.Publish(p2p.TopicTransactionAccepted(t.Address))
	return nil
}

func (m *localMiner) StartMining(s *message.StartMining) error {
	return m.SubmitTransaction(s.Transaction)
}

func (m *localMiner) AddMiningContext(*message.AddMiningContext) error { return nil }
func (m *localMiner) CrossValidate(*message.CrossValidate) error       { return nil }
func (m *localMiner) CrossValidationDone(*message.CrossValidationDone) error {
	return nil
}

// loadStorageNonce reads the node storage nonce, creating it on first start
func loadStorageNonce(dataPath string) []byte {
	file := filepath.Join(dataPath, "storage_nonce")
	if content, err := ioutil.ReadFile(file); err == nil && len(content) == 32 {
		return content
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		logger.Fatalf("generate storage nonce failed:%v", err)
	}
	if err := ioutil.WriteFile(file, nonce, 0600); err != nil {
		logger.Fatalf("persist storage nonce failed:%v", err)
	}
	return nonce
}
