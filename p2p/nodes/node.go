/*
Node
+----------------------------------+
| FirstPublicKey | LastPublicKey   |
+------+------+--------+-----------+
| IP   | Port | HTTP   | Transport |
+------+------+--------+-----------+
| RewardAddress                    |
+-----------+-----------+----------+
| GeoPatch  | NetPatch  | Flags    |
+-----------+-----------+----------+
| AuthorizationDate                |
+----------------------------------+
| OriginPublicKey                  |
+-----------+----------------------+
| CertL     |     Certificate      |
+-----------+----------------------+
(bytes)
FirstPublicKey      tagged key
LastPublicKey       tagged key
IP                  4
Port                2
HTTP port           2
Transport           1
RewardAddress       tagged hash
GeoPatch            3
NetPatch            3
Flags               1 (bit1 available, bit0 authorized)
AuthorizationDate   4
OriginPublicKey     tagged key
Certificate length  2
Certificate         -
*/
package nodes

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

// Transport is the wire transport tag of a node endpoint
type Transport = uint8

const (
	TransportTCP = Transport(0)
)

const patchLen = 3

const (
	flagAuthorized = 1 << 0
	flagAvailable  = 1 << 1
)

// Node is one member of the network as seen by the membership table
type Node struct {
	FirstPublicKey  *crypto.PublicKey
	LastPublicKey   *crypto.PublicKey
	IP              net.IP
	Port            uint16
	HTTPPort        uint16
	Transport       Transport
	RewardAddress   []byte
	OriginPublicKey *crypto.PublicKey
	Certificate     []byte
	GeoPatch        string
	NetworkPatch    string
	Available       bool
	Authorized      bool
	// AuthorizationDate is the unix time the node entered the authorized set
	AuthorizationDate int64
}

// Marshal returns the wire form of the node record
func (n *Node) Marshal() []byte {
	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(n.FirstPublicKey.Marshal())
	buf.Write(n.LastPublicKey.Marshal())
	buf.Write(n.IP.To4())
	binary.Write(buf, binary.BigEndian, n.Port)
	binary.Write(buf, binary.BigEndian, n.HTTPPort)
	buf.WriteByte(n.Transport)
	buf.Write(n.RewardAddress)
	buf.WriteString(fixPatch(n.GeoPatch))
	buf.WriteString(fixPatch(n.NetworkPatch))

	var flags uint8
	if n.Authorized {
		flags |= flagAuthorized
	}
	if n.Available {
		flags |= flagAvailable
	}
	buf.WriteByte(flags)
	binary.Write(buf, binary.BigEndian, uint32(n.AuthorizationDate))

	buf.Write(n.OriginPublicKey.Marshal())
	binary.Write(buf, binary.BigEndian, utils.Uint16Len(n.Certificate))
	buf.Write(n.Certificate)

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result
}

// Unmarshal reads one node record from the stream
func Unmarshal(data io.Reader) (*Node, error) {
	result := &Node{}
	var err error

	if result.FirstPublicKey, err = crypto.ReadPublicKey(data); err != nil {
		return nil, err
	}
	if result.LastPublicKey, err = crypto.ReadPublicKey(data); err != nil {
		return nil, err
	}

	ip := make([]byte, 4)
	if _, err = io.ReadFull(data, ip); err != nil {
		return nil, err
	}
	result.IP = net.IPv4(ip[0], ip[1], ip[2], ip[3]).To4()

	if err = binary.Read(data, binary.BigEndian, &result.Port); err != nil {
		return nil, err
	}
	if err = binary.Read(data, binary.BigEndian, &result.HTTPPort); err != nil {
		return nil, err
	}
	if err = binary.Read(data, binary.BigEndian, &result.Transport); err != nil {
		return nil, err
	}
	if result.Transport != TransportTCP {
		return nil, fmt.Errorf("invalid transport %d", result.Transport)
	}

	if result.RewardAddress, err = crypto.ReadHash(data); err != nil {
		return nil, err
	}

	patches := make([]byte, 2*patchLen)
	if _, err = io.ReadFull(data, patches); err != nil {
		return nil, err
	}
	result.GeoPatch = string(patches[:patchLen])
	result.NetworkPatch = string(patches[patchLen:])

	var flags uint8
	if err = binary.Read(data, binary.BigEndian, &flags); err != nil {
		return nil, err
	}
	result.Authorized = flags&flagAuthorized != 0
	result.Available = flags&flagAvailable != 0

	var authDate uint32
	if err = binary.Read(data, binary.BigEndian, &authDate); err != nil {
		return nil, err
	}
	result.AuthorizationDate = int64(authDate)

	if result.OriginPublicKey, err = crypto.ReadPublicKey(data); err != nil {
		return nil, err
	}

	var certLen uint16
	if err = binary.Read(data, binary.BigEndian, &certLen); err != nil {
		return nil, err
	}
	result.Certificate = make([]byte, certLen)
	if _, err = io.ReadFull(data, result.Certificate); err != nil {
		return nil, err
	}

	return result, nil
}

func (n *Node) String() string {
	return fmt.Sprintf("node %s %s:%d patch %s",
		n.FirstPublicKey, n.IP, n.Port, n.NetworkPatch)
}

// fixPatch pads or truncates a patch to its wire length
func fixPatch(patch string) string {
	if len(patch) >= patchLen {
		return patch[:patchLen]
	}
	for len(patch) < patchLen {
		patch += "0"
	}
	return patch
}
