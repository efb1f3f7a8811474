/*
GetBootstrappingNodes
+------+---------+
| Tag  | Patch   |
+------+---------+
Patch       3

GetStorageNonce / NodeAvailability
+------+----------------+
| Tag  |   PublicKey    |
+------+----------------+

ListNodes / Ping
+------+
| Tag  |
+------+

NotifyEndOfNodeSync
+------+-------------+-----------+
| Tag  |  PublicKey  | Timestamp |
+------+-------------+-----------+
Timestamp   4

GetP2PView
+------+--------+----------------+
| Tag  | KeysN  | Keys           |
+------+--------+----------------+
KeysN       2
*/
package message

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

// GetBootstrappingNodes asks a seed for the nodes closest to a patch
type GetBootstrappingNodes struct {
	Patch string
}

func unmarshalGetBootstrappingNodes(r io.Reader) (Message, error) {
	patch, err := readFull(r, 3)
	if err != nil {
		return nil, err
	}
	return &GetBootstrappingNodes{Patch: string(patch)}, nil
}

func (m *GetBootstrappingNodes) Tag() Tag { return TagGetBootstrappingNodes }

func (m *GetBootstrappingNodes) Marshal() []byte {
	patch := m.Patch
	for len(patch) < 3 {
		patch += "0"
	}
	return marshalFrame(m.Tag(), []byte(patch[:3]))
}

func (m *GetBootstrappingNodes) String() string {
	return fmt.Sprintf("GetBootstrappingNodes patch %s", m.Patch)
}

// GetStorageNonce asks for the storage nonce sealed for the given key
type GetStorageNonce struct {
	PublicKey *crypto.PublicKey
}

func unmarshalGetStorageNonce(r io.Reader) (Message, error) {
	key, err := crypto.ReadPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &GetStorageNonce{PublicKey: key}, nil
}

func (m *GetStorageNonce) Tag() Tag { return TagGetStorageNonce }

func (m *GetStorageNonce) Marshal() []byte {
	return marshalFrame(m.Tag(), m.PublicKey.Marshal())
}

func (m *GetStorageNonce) String() string {
	return fmt.Sprintf("GetStorageNonce for %s", m.PublicKey)
}

// ListNodes asks for the full membership table
type ListNodes struct{}

func unmarshalListNodes(io.Reader) (Message, error) {
	return &ListNodes{}, nil
}

func (m *ListNodes) Tag() Tag { return TagListNodes }

func (m *ListNodes) Marshal() []byte {
	return marshalFrame(m.Tag(), nil)
}

func (m *ListNodes) String() string {
	return "ListNodes"
}

// NotifyEndOfNodeSync tells the network a node finished syncing
type NotifyEndOfNodeSync struct {
	PublicKey *crypto.PublicKey
	Timestamp uint32
}

func unmarshalNotifyEndOfNodeSync(r io.Reader) (Message, error) {
	key, err := crypto.ReadPublicKey(r)
	if err != nil {
		return nil, err
	}
	timestamp, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &NotifyEndOfNodeSync{PublicKey: key, Timestamp: timestamp}, nil
}

func (m *NotifyEndOfNodeSync) Tag() Tag { return TagNotifyEndOfNodeSync }

func (m *NotifyEndOfNodeSync) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(m.PublicKey.Marshal())
	binary.Write(buf, binary.BigEndian, m.Timestamp)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *NotifyEndOfNodeSync) String() string {
	return fmt.Sprintf("NotifyEndOfNodeSync %s at %s",
		m.PublicKey, utils.TimeToString(int64(m.Timestamp)))
}

// GetP2PView asks for the availability of the listed nodes
type GetP2PView struct {
	NodePublicKeys []*crypto.PublicKey
}

func unmarshalGetP2PView(r io.Reader) (Message, error) {
	keysN, err := readUint16(r)
	if err != nil {
		return nil, err
	}

	result := &GetP2PView{}
	for i := uint16(0); i < keysN; i++ {
		key, err := crypto.ReadPublicKey(r)
		if err != nil {
			return nil, err
		}
		result.NodePublicKeys = append(result.NodePublicKeys, key)
	}
	return result, nil
}

func (m *GetP2PView) Tag() Tag { return TagGetP2PView }

func (m *GetP2PView) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, uint16(len(m.NodePublicKeys)))
	for _, key := range m.NodePublicKeys {
		buf.Write(key.Marshal())
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *GetP2PView) String() string {
	return fmt.Sprintf("GetP2PView over %d nodes", len(m.NodePublicKeys))
}

// NodeAvailability announces that a node became globally reachable
type NodeAvailability struct {
	PublicKey *crypto.PublicKey
}

func unmarshalNodeAvailability(r io.Reader) (Message, error) {
	key, err := crypto.ReadPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &NodeAvailability{PublicKey: key}, nil
}

func (m *NodeAvailability) Tag() Tag { return TagNodeAvailability }

func (m *NodeAvailability) Marshal() []byte {
	return marshalFrame(m.Tag(), m.PublicKey.Marshal())
}

func (m *NodeAvailability) String() string {
	return fmt.Sprintf("NodeAvailability %s", m.PublicKey)
}

// Ping probes a peer
type Ping struct{}

func unmarshalPing(io.Reader) (Message, error) {
	return &Ping{}, nil
}

func (m *Ping) Tag() Tag { return TagPing }

func (m *Ping) Marshal() []byte {
	return marshalFrame(m.Tag(), nil)
}

func (m *Ping) String() string {
	return "Ping"
}
