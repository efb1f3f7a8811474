/*
Error
+------+--------+
| Tag  | Reason |
+------+--------+

Ok / NotFound
+------+
| Tag  |
+------+

EncryptedStorageNonce
+------+--------+--------------+
| Tag  | NonceL |    Nonce     |
+------+--------+--------------+
NonceL      1

BootstrappingNodes
+------+--------+---------------+
| Tag  | SeedsN | Seeds:(Node)  |
+------+--------+---------------+
| ClosestN | Closest:(Node)     |
+----------+--------------------+
SeedsN      1
ClosestN    1

NodeList
+------+--------+---------------+
| Tag  | NodesN | Nodes:(Node)  |
+------+--------+---------------+
NodesN      2

LastTransactionAddress
+------+----------------------+
| Tag  |       Address        |
+------+----------------------+

FirstPublicKey
+------+----------------------+
| Tag  |      PublicKey       |
+------+----------------------+

P2PView
+------+----------------------+
| Tag  | Availability:(View)  |
+------+----------------------+

TransactionChainLength
+------+--------+
| Tag  | Length |
+------+--------+
Length      4
*/
package message

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/nodes"
	"github.com/kgricour/archethic-node/utils"
)

// Reason tags an Error response
type Reason = uint8

const (
	ReasonInvalidTransaction = Reason(0)
	ReasonNetworkIssue       = Reason(1)
)

// Error reports a request that could not be served
type Error struct {
	Reason Reason
}

func unmarshalError(r io.Reader) (Message, error) {
	reason, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	if reason > ReasonNetworkIssue {
		return nil, fmt.Errorf("%w: error reason %d", ErrMalformed, reason)
	}
	return &Error{Reason: reason}, nil
}

func (m *Error) Tag() Tag { return TagError }

func (m *Error) Marshal() []byte {
	return marshalFrame(m.Tag(), []byte{m.Reason})
}

func (m *Error) String() string {
	switch m.Reason {
	case ReasonInvalidTransaction:
		return "Error invalid_transaction"
	case ReasonNetworkIssue:
		return "Error network_issue"
	default:
		return fmt.Sprintf("Error reason %d", m.Reason)
	}
}

// Ok acknowledges a request with no payload to return
type Ok struct{}

func unmarshalOk(io.Reader) (Message, error) {
	return &Ok{}, nil
}

func (m *Ok) Tag() Tag { return TagOk }

func (m *Ok) Marshal() []byte {
	return marshalFrame(m.Tag(), nil)
}

func (m *Ok) String() string {
	return "Ok"
}

// NotFound reports a lookup that matched nothing
type NotFound struct{}

func unmarshalNotFound(io.Reader) (Message, error) {
	return &NotFound{}, nil
}

func (m *NotFound) Tag() Tag { return TagNotFound }

func (m *NotFound) Marshal() []byte {
	return marshalFrame(m.Tag(), nil)
}

func (m *NotFound) String() string {
	return "NotFound"
}

// EncryptedStorageNonce carries the storage nonce sealed for the
// requesting node key
type EncryptedStorageNonce struct {
	Nonce []byte
}

func unmarshalEncryptedStorageNonce(r io.Reader) (Message, error) {
	size, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	nonce, err := readFull(r, int(size))
	if err != nil {
		return nil, err
	}
	return &EncryptedStorageNonce{Nonce: nonce}, nil
}

func (m *EncryptedStorageNonce) Tag() Tag { return TagEncryptedStorageNonce }

func (m *EncryptedStorageNonce) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.WriteByte(utils.Uint8Len(m.Nonce))
	buf.Write(m.Nonce)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *EncryptedStorageNonce) String() string {
	return fmt.Sprintf("EncryptedStorageNonce of %d bytes", len(m.Nonce))
}

// BootstrappingNodes answers a bootstrap request with fresh seeds and
// the nodes closest to the requested patch
type BootstrappingNodes struct {
	NewSeeds     []*nodes.Node
	ClosestNodes []*nodes.Node
}

func unmarshalBootstrappingNodes(r io.Reader) (Message, error) {
	result := &BootstrappingNodes{}

	seedsN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < seedsN; i++ {
		n, err := nodes.Unmarshal(r)
		if err != nil {
			return nil, err
		}
		result.NewSeeds = append(result.NewSeeds, n)
	}

	closestN, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	for i := uint8(0); i < closestN; i++ {
		n, err := nodes.Unmarshal(r)
		if err != nil {
			return nil, err
		}
		result.ClosestNodes = append(result.ClosestNodes, n)
	}
	return result, nil
}

func (m *BootstrappingNodes) Tag() Tag { return TagBootstrappingNodes }

func (m *BootstrappingNodes) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.WriteByte(uint8(len(m.NewSeeds)))
	for _, n := range m.NewSeeds {
		buf.Write(n.Marshal())
	}
	buf.WriteByte(uint8(len(m.ClosestNodes)))
	for _, n := range m.ClosestNodes {
		buf.Write(n.Marshal())
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *BootstrappingNodes) String() string {
	return fmt.Sprintf("BootstrappingNodes %d seeds %d closest",
		len(m.NewSeeds), len(m.ClosestNodes))
}

// NodeList carries the membership table
type NodeList struct {
	Nodes []*nodes.Node
}

func unmarshalNodeList(r io.Reader) (Message, error) {
	nodesN, err := readUint16(r)
	if err != nil {
		return nil, err
	}

	result := &NodeList{}
	for i := uint16(0); i < nodesN; i++ {
		n, err := nodes.Unmarshal(r)
		if err != nil {
			return nil, err
		}
		result.Nodes = append(result.Nodes, n)
	}
	return result, nil
}

func (m *NodeList) Tag() Tag { return TagNodeList }

func (m *NodeList) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, uint16(len(m.Nodes)))
	for _, n := range m.Nodes {
		buf.Write(n.Marshal())
	}
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *NodeList) String() string {
	return fmt.Sprintf("NodeList of %d nodes", len(m.Nodes))
}

// LastTransactionAddress carries the last known address of a chain
type LastTransactionAddress struct {
	Address []byte
}

func unmarshalLastTransactionAddress(r io.Reader) (Message, error) {
	address, err := crypto.ReadHash(r)
	if err != nil {
		return nil, err
	}
	return &LastTransactionAddress{Address: address}, nil
}

func (m *LastTransactionAddress) Tag() Tag { return TagLastTransactionAddress }

func (m *LastTransactionAddress) Marshal() []byte {
	return marshalFrame(m.Tag(), m.Address)
}

func (m *LastTransactionAddress) String() string {
	return fmt.Sprintf("LastTransactionAddress %s", utils.ToHex(m.Address))
}

// FirstPublicKey carries the first public key of a chain
type FirstPublicKey struct {
	PublicKey *crypto.PublicKey
}

func unmarshalFirstPublicKey(r io.Reader) (Message, error) {
	key, err := crypto.ReadPublicKey(r)
	if err != nil {
		return nil, err
	}
	return &FirstPublicKey{PublicKey: key}, nil
}

func (m *FirstPublicKey) Tag() Tag { return TagFirstPublicKey }

func (m *FirstPublicKey) Marshal() []byte {
	return marshalFrame(m.Tag(), m.PublicKey.Marshal())
}

func (m *FirstPublicKey) String() string {
	return fmt.Sprintf("FirstPublicKey %s", m.PublicKey)
}

// P2PView carries one availability bit per requested node
type P2PView struct {
	AvailableNodes View
}

func unmarshalP2PView(r io.Reader) (Message, error) {
	view, err := readView(r)
	if err != nil {
		return nil, err
	}
	return &P2PView{AvailableNodes: view}, nil
}

func (m *P2PView) Tag() Tag { return TagP2PView }

func (m *P2PView) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	writeView(buf, m.AvailableNodes)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *P2PView) String() string {
	return fmt.Sprintf("P2PView over %d nodes", len(m.AvailableNodes))
}

// TransactionChainLength carries the number of transactions in a chain
type TransactionChainLength struct {
	Length uint32
}

func unmarshalTransactionChainLength(r io.Reader) (Message, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	return &TransactionChainLength{Length: length}, nil
}

func (m *TransactionChainLength) Tag() Tag { return TagTransactionChainLength }

func (m *TransactionChainLength) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	binary.Write(buf, binary.BigEndian, m.Length)
	return marshalFrame(m.Tag(), buf.Bytes())
}

func (m *TransactionChainLength) String() string {
	return fmt.Sprintf("TransactionChainLength %d", m.Length)
}
