/*
Node transaction content
+------+------+--------+-----------+
| IP   | Port | HTTP   | Transport |
+------+------+--------+-----------+
| RewardAddress                    |
+----------------------------------+
| OriginPublicKey                  |
+-----------+----------------------+
| CertL     |     Certificate      |
+-----------+----------------------+
(bytes)
IP                  4
Port                2
HTTP port           2
Transport           1
RewardAddress       tagged hash
OriginPublicKey     tagged key
Certificate length  2
Certificate         -
*/
package nodes

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

// TransactionContent is the payload a node transaction declares itself with
type TransactionContent struct {
	IP              net.IP
	Port            uint16
	HTTPPort        uint16
	Transport       Transport
	RewardAddress   []byte
	OriginPublicKey *crypto.PublicKey
	Certificate     []byte
}

// EncodeContent builds the content field of a node transaction
func EncodeContent(c *TransactionContent) ([]byte, error) {
	ip := c.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid IPv4:%s", c.IP)
	}

	buf := utils.GetBuf()
	defer utils.ReturnBuf(buf)

	buf.Write(ip)
	binary.Write(buf, binary.BigEndian, c.Port)
	binary.Write(buf, binary.BigEndian, c.HTTPPort)
	buf.WriteByte(c.Transport)
	buf.Write(c.RewardAddress)
	buf.Write(c.OriginPublicKey.Marshal())
	binary.Write(buf, binary.BigEndian, utils.Uint16Len(c.Certificate))
	buf.Write(c.Certificate)

	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// DecodeContent parses the content field of a node transaction; any
// trailing bytes make the content invalid
func DecodeContent(content []byte) (*TransactionContent, error) {
	r := bytes.NewReader(content)
	result := &TransactionContent{}
	var err error

	ip := make([]byte, 4)
	if _, err = io.ReadFull(r, ip); err != nil {
		return nil, err
	}
	result.IP = net.IPv4(ip[0], ip[1], ip[2], ip[3]).To4()

	if err = binary.Read(r, binary.BigEndian, &result.Port); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &result.HTTPPort); err != nil {
		return nil, err
	}
	if err = binary.Read(r, binary.BigEndian, &result.Transport); err != nil {
		return nil, err
	}
	if result.Transport != TransportTCP {
		return nil, fmt.Errorf("invalid transport %d", result.Transport)
	}

	if result.RewardAddress, err = crypto.ReadHash(r); err != nil {
		return nil, err
	}
	if result.OriginPublicKey, err = crypto.ReadPublicKey(r); err != nil {
		return nil, err
	}

	var certLen uint16
	if err = binary.Read(r, binary.BigEndian, &certLen); err != nil {
		return nil, err
	}
	result.Certificate = make([]byte, certLen)
	if _, err = io.ReadFull(r, result.Certificate); err != nil {
		return nil, err
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("trailing bytes after node content")
	}
	return result, nil
}
