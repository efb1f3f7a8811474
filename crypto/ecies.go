package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
)

/*
EC encryption seals a payload for the holder of a tagged public key:
an ephemeral keypair on the recipient curve, an ECDH shared secret
hashed with sha512, then AES-256-GCM keyed from the first 32 bytes with
the next 12 bytes as nonce. The wire form is the uncompressed ephemeral
public point followed by the ciphertext and tag.
*/

// ErrECIESUnsupported is returned for recipient curves without an ECDH
// construction here; node keys default to secp256k1
var ErrECIESUnsupported = errors.New("unsupported curve for EC encryption")

const uncompressedPointLen = 65

// ECEncrypt seals data for the holder of pub
func ECEncrypt(data []byte, pub *PublicKey) ([]byte, error) {
	switch pub.Curve {
	case CurveSecp256k1:
		return secpEncrypt(data, pub)
	case CurveP256:
		return p256Encrypt(data, pub)
	default:
		return nil, fmt.Errorf("%w: curve %d", ErrECIESUnsupported, pub.Curve)
	}
}

// ECDecrypt opens a payload sealed with ECEncrypt
func ECDecrypt(data []byte, priv *PrivateKey) ([]byte, error) {
	if len(data) < uncompressedPointLen {
		return nil, errors.New("cipher text too short")
	}
	ephemeral, cipherText := data[:uncompressedPointLen], data[uncompressedPointLen:]

	switch priv.Curve {
	case CurveSecp256k1:
		ecPriv, _ := btcec.PrivKeyFromBytes(btcec.S256(), priv.Seed)
		ephPub, err := btcec.ParsePubKey(ephemeral, btcec.S256())
		if err != nil {
			return nil, err
		}
		shared := sha512.Sum512(btcec.GenerateSharedSecret(ecPriv, ephPub))
		return aeadOpen(shared[:], cipherText)
	case CurveP256:
		ecPriv, err := p256KeyFromSeed(priv.Seed)
		if err != nil {
			return nil, err
		}
		x, y := elliptic.Unmarshal(elliptic.P256(), ephemeral)
		if x == nil {
			return nil, errors.New("invalid ephemeral point")
		}
		sx, _ := elliptic.P256().ScalarMult(x, y, ecPriv.D.Bytes())
		shared := sha512.Sum512(sx.Bytes())
		return aeadOpen(shared[:], cipherText)
	default:
		return nil, fmt.Errorf("%w: curve %d", ErrECIESUnsupported, priv.Curve)
	}
}

// EncryptStorageNonce seals the storage nonce for a requesting node key
func EncryptStorageNonce(nonce []byte, pub *PublicKey) ([]byte, error) {
	return ECEncrypt(nonce, pub)
}

func secpEncrypt(data []byte, pub *PublicKey) ([]byte, error) {
	remote, err := btcec.ParsePubKey(pub.Key, btcec.S256())
	if err != nil {
		return nil, err
	}

	ephemeral, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}

	shared := sha512.Sum512(btcec.GenerateSharedSecret(ephemeral, remote))
	cipherText, err := aeadSeal(shared[:], data)
	if err != nil {
		return nil, err
	}

	return append(ephemeral.PubKey().SerializeUncompressed(), cipherText...), nil
}

func p256Encrypt(data []byte, pub *PublicKey) ([]byte, error) {
	curve := elliptic.P256()
	x, y := elliptic.Unmarshal(curve, pub.Key)
	if x == nil {
		return nil, errors.New("invalid public point")
	}

	ephemeral, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	sx, _ := curve.ScalarMult(x, y, ephemeral.D.Bytes())
	shared := sha512.Sum512(sx.Bytes())
	cipherText, err := aeadSeal(shared[:], data)
	if err != nil {
		return nil, err
	}

	ephemeralB := elliptic.Marshal(curve, ephemeral.X, ephemeral.Y)
	return append(ephemeralB, cipherText...), nil
}

func aeadSeal(shared []byte, data []byte) ([]byte, error) {
	aead, nonce, err := newAEAD(shared)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, data, nil), nil
}

func aeadOpen(shared []byte, cipherText []byte) ([]byte, error) {
	aead, nonce, err := newAEAD(shared)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, cipherText, nil)
}

func newAEAD(shared []byte) (cipher.AEAD, []byte, error) {
	block, err := aes.NewCipher(shared[:32])
	if err != nil {
		return nil, nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	return aead, shared[32 : 32+12], nil
}
