package p2p

import (
	"sync"

	"github.com/kgricour/archethic-node/utils"
)

// PubSub is the in-process event bus the dispatcher blocks on while a
// submitted transaction goes through mining. Subscriptions are one-shot
// and scoped: cancel is safe to call on every exit path and always
// deregisters the channel.
type PubSub struct {
	mutex  sync.Mutex
	topics map[string]map[int]chan struct{}
	nextID int
}

func NewPubSub() *PubSub {
	return &PubSub{
		topics: make(map[string]map[int]chan struct{}),
	}
}

// SubscribeOnce registers a one-shot subscription on a topic
func (p *PubSub) SubscribeOnce(topic string) (<-chan struct{}, func()) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.topics[topic] == nil {
		p.topics[topic] = make(map[int]chan struct{})
	}

	id := p.nextID
	p.nextID++
	ch := make(chan struct{}, 1)
	p.topics[topic][id] = ch

	cancel := func() {
		p.mutex.Lock()
		defer p.mutex.Unlock()
		if subs, ok := p.topics[topic]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(p.topics, topic)
			}
		}
	}
	return ch, cancel
}

// Publish wakes every subscriber of a topic and drops the subscriptions
func (p *PubSub) Publish(topic string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, ch := range p.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	delete(p.topics, topic)
}

// TopicTransactionAccepted is published once mining accepted the
// transaction stored at the given address
func TopicTransactionAccepted(address []byte) string {
	return "transaction_accepted:" + utils.ToHex(address)
}

// TopicStorageAcknowledged is published when a storage node confirmed a
// replicated transaction
func TopicStorageAcknowledged(address []byte) string {
	return "storage_acknowledged:" + utils.ToHex(address)
}

// TopicNodeSynced is published when a peer reports the end of its sync
func TopicNodeSynced() string {
	return "node_synced"
}
