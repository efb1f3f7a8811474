package crypto

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/kgricour/archethic-node/utils"
)

/*
A key certificate binds a device public key to a recognized producer: it
is the producer root key's signature over the tagged device key. Keys of
software origin carry no certificate.
*/

// CertificateStore resolves the certificate delivered with a device key.
// Certificates are provisioned as files named by the hex form of the key.
type CertificateStore struct {
	dir string
}

func NewCertificateStore(dir string) (*CertificateStore, error) {
	if err := utils.AccessCheck(dir); err != nil {
		return nil, err
	}
	return &CertificateStore{dir: dir}, nil
}

// GetKeyCertificate returns the certificate of the given key,
// or nil when none was provisioned
func (c *CertificateStore) GetKeyCertificate(pub *PublicKey) ([]byte, error) {
	file := filepath.Join(c.dir, pub.String())
	content, err := ioutil.ReadFile(file)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read certificate failed:%v", err)
	}
	return content, nil
}

// VerifyCertificate checks that cert binds pub to the producer root key.
// An empty certificate is only acceptable for keys of software origin.
func VerifyCertificate(pub *PublicKey, cert []byte, originPub *PublicKey) bool {
	if len(cert) == 0 {
		return pub.Origin == OriginSoftware
	}
	if originPub == nil {
		return false
	}
	return Verify(originPub, pub.Marshal(), cert)
}
