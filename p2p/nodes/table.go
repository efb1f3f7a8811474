package nodes

import (
	"sort"
	"sync"

	"github.com/kgricour/archethic-node/crypto"
)

// Table is the in-memory membership table. It is filled by the bootstrap
// step and mutated only through the explicit availability/authorization
// transitions; reads vastly outnumber writes.
type Table struct {
	mutex  sync.RWMutex
	nodes  map[string]*Node // keyed by first public key
	byLast map[string]string
}

func NewTable() *Table {
	return &Table{
		nodes:  make(map[string]*Node),
		byLast: make(map[string]string),
	}
}

// Add registers or replaces a node record
func (t *Table) Add(n *Node) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	firstKey := n.FirstPublicKey.String()
	if old, ok := t.nodes[firstKey]; ok {
		delete(t.byLast, old.LastPublicKey.String())
	}
	clone := *n
	t.nodes[firstKey] = &clone
	t.byLast[n.LastPublicKey.String()] = firstKey
}

// List returns a snapshot of every known node
func (t *Table) List() []*Node {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		clone := *n
		result = append(result, &clone)
	}
	sortNodes(result)
	return result
}

// Authorized returns a snapshot of the authorized nodes
func (t *Table) Authorized() []*Node {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	var result []*Node
	for _, n := range t.nodes {
		if n.Authorized {
			clone := *n
			result = append(result, &clone)
		}
	}
	sortNodes(result)
	return result
}

// Info resolves a node by its first or last public key
func (t *Table) Info(key *crypto.PublicKey) (*Node, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	n, ok := t.lookup(key)
	if !ok {
		return nil, false
	}
	clone := *n
	return &clone, true
}

// HasFirstKey reports whether key is the first public key of a known node
func (t *Table) HasFirstKey(key *crypto.PublicKey) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	_, ok := t.nodes[key.String()]
	return ok
}

// SetGloballyAvailable flags a node as available to the whole network
func (t *Table) SetGloballyAvailable(key *crypto.PublicKey) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	n, ok := t.lookup(key)
	if !ok {
		return false
	}
	n.Available = true
	return true
}

// SetAuthorized moves a node into the authorized set
func (t *Table) SetAuthorized(key *crypto.PublicKey, date int64) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	n, ok := t.lookup(key)
	if !ok {
		return false
	}
	n.Authorized = true
	n.AuthorizationDate = date
	return true
}

// Nearest returns the known nodes ordered by network patch proximity
func (t *Table) Nearest(patch string) []*Node {
	result := t.List()
	sort.SliceStable(result, func(i, j int) bool {
		return patchDistance(patch, result[i].NetworkPatch) <
			patchDistance(patch, result[j].NetworkPatch)
	})
	return result
}

// AvailabilityBits returns one bit per requested key, set when the node
// is known and globally available
func (t *Table) AvailabilityBits(keys []*crypto.PublicKey) []bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	result := make([]bool, len(keys))
	for i, key := range keys {
		if n, ok := t.lookup(key); ok {
			result[i] = n.Available
		}
	}
	return result
}

func (t *Table) lookup(key *crypto.PublicKey) (*Node, bool) {
	keyStr := key.String()
	if n, ok := t.nodes[keyStr]; ok {
		return n, true
	}
	if firstKey, ok := t.byLast[keyStr]; ok {
		return t.nodes[firstKey], true
	}
	return nil, false
}

// patchDistance counts the leading hex characters two patches share,
// negated so that closer patches sort first
func patchDistance(a, b string) int {
	a, b = fixPatch(a), fixPatch(b)
	shared := 0
	for i := 0; i < patchLen; i++ {
		if a[i] != b[i] {
			break
		}
		shared++
	}
	return -shared
}

func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].FirstPublicKey.String() < nodes[j].FirstPublicKey.String()
	})
}
