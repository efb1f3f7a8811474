package pools

import (
	"sync"

	"github.com/kgricour/archethic-node/crypto"
)

// Pool names a governance key set
type Pool string

const (
	// TechnicalCouncil holds the keys allowed to approve code proposals
	TechnicalCouncil = Pool("technical_council")
	// OriginKeys holds the recognized origin device public keys
	OriginKeys = Pool("origin_keys")
)

// MemTable is the in-memory registry of governance pools; filled during
// bootstrap, read by the validator
type MemTable struct {
	mutex sync.RWMutex
	pools map[Pool][]*crypto.PublicKey
}

func NewMemTable() *MemTable {
	return &MemTable{
		pools: make(map[Pool][]*crypto.PublicKey),
	}
}

// Add appends keys to a pool, skipping the ones already present
func (m *MemTable) Add(pool Pool, keys ...*crypto.PublicKey) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, key := range keys {
		if containsKey(m.pools[pool], key) {
			continue
		}
		m.pools[pool] = append(m.pools[pool], key)
	}
}

// Members returns a snapshot of a pool
func (m *MemTable) Members(pool Pool) []*crypto.PublicKey {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*crypto.PublicKey, len(m.pools[pool]))
	copy(result, m.pools[pool])
	return result
}

// IsMember reports whether key belongs to a pool
func (m *MemTable) IsMember(pool Pool, key *crypto.PublicKey) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return containsKey(m.pools[pool], key)
}

func containsKey(keys []*crypto.PublicKey, key *crypto.PublicKey) bool {
	for _, k := range keys {
		if k.Equal(key) {
			return true
		}
	}
	return false
}
