package params

import (
	"sync"
	"time"
)

// Network holds the process-wide registers shared by the dispatcher and the
// pending transaction validator: the genesis addresses of the singleton
// chains, the accepted node key origins and the admission limits.
// It is written during bootstrap (and on shared secrets rotation) and read
// concurrently afterwards; readers never observe a partial update.
type Network struct {
	mutex sync.RWMutex

	contentMaxSize           int
	miningTimeout            time.Duration
	nodeSharedSecretsGenesis []byte
	rewardGenesis            []byte
	originGenesis            [][]byte
	allowedKeyOrigins        []uint8
}

// NewNetwork returns registers with the default limits and no genesis
// addresses; callers fill them in during bootstrap.
func NewNetwork() *Network {
	return &Network{
		contentMaxSize: DefaultContentMaxSize,
		miningTimeout:  DefaultMiningTimeoutSeconds * time.Second,
	}
}

func (n *Network) ContentMaxSize() int {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.contentMaxSize
}

func (n *Network) SetContentMaxSize(size int) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.contentMaxSize = size
}

func (n *Network) MiningTimeout() time.Duration {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.miningTimeout
}

func (n *Network) SetMiningTimeout(d time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.miningTimeout = d
}

func (n *Network) NodeSharedSecretsGenesis() []byte {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return copyBytes(n.nodeSharedSecretsGenesis)
}

func (n *Network) SetNodeSharedSecretsGenesis(addr []byte) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.nodeSharedSecretsGenesis = copyBytes(addr)
}

func (n *Network) RewardGenesis() []byte {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return copyBytes(n.rewardGenesis)
}

func (n *Network) SetRewardGenesis(addr []byte) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.rewardGenesis = copyBytes(addr)
}

// OriginGenesis returns the genesis addresses of the origin chains;
// the origin chain is multi-valued, one per key family.
func (n *Network) OriginGenesis() [][]byte {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	result := make([][]byte, 0, len(n.originGenesis))
	for _, addr := range n.originGenesis {
		result = append(result, copyBytes(addr))
	}
	return result
}

func (n *Network) AddOriginGenesis(addrs ...[]byte) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	for _, addr := range addrs {
		n.originGenesis = append(n.originGenesis, copyBytes(addr))
	}
}

// AllowedKeyOrigins returns the accepted node key origins;
// an empty set means no restriction.
func (n *Network) AllowedKeyOrigins() []uint8 {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	result := make([]uint8, len(n.allowedKeyOrigins))
	copy(result, n.allowedKeyOrigins)
	return result
}

func (n *Network) SetAllowedKeyOrigins(origins []uint8) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.allowedKeyOrigins = make([]uint8, len(origins))
	copy(n.allowedKeyOrigins, origins)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	result := make([]byte, len(b))
	copy(result, b)
	return result
}
