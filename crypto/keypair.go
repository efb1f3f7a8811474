package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"

	"github.com/kgricour/archethic-node/utils"
)

// PublicKey is a tagged public key: the curve byte fixes the raw key
// length and the origin byte names the producing key family
type PublicKey struct {
	Curve  Curve
	Origin Origin
	Key    []byte
}

// ParsePublicKey parses a full tagged key buffer
func ParsePublicKey(data []byte) (*PublicKey, error) {
	if len(data) < 2 {
		return nil, errors.New("public key too short")
	}

	size, err := KeySize(data[0])
	if err != nil {
		return nil, err
	}
	if len(data) != 2+size {
		return nil, fmt.Errorf("invalid public key length %d for curve %d",
			len(data), data[0])
	}

	key := make([]byte, size)
	copy(key, data[2:])
	return &PublicKey{
		Curve:  data[0],
		Origin: data[1],
		Key:    key,
	}, nil
}

// Marshal returns the tagged wire form of the key
func (p *PublicKey) Marshal() []byte {
	result := make([]byte, 0, 2+len(p.Key))
	result = append(result, p.Curve, p.Origin)
	result = append(result, p.Key...)
	return result
}

func (p *PublicKey) Equal(other *PublicKey) bool {
	if other == nil {
		return false
	}
	return p.Curve == other.Curve &&
		p.Origin == other.Origin &&
		bytes.Equal(p.Key, other.Key)
}

func (p *PublicKey) String() string {
	return utils.ToHex(p.Marshal())
}

// PrivateKey keeps the 32 bytes scalar/seed of a tagged keypair
type PrivateKey struct {
	Curve  Curve
	Origin Origin
	Seed   []byte
}

// DeriveKeypair derives the keypair at the given chain index from a master
// seed; the same (seed, index, curve) always yields the same keypair
func DeriveKeypair(seed []byte, index uint32, curve Curve, origin Origin) (*PublicKey, *PrivateKey, error) {
	indexB := make([]byte, 4)
	binary.BigEndian.PutUint32(indexB, index)

	extended := sha512.Sum512(append(append([]byte{}, seed...), indexB...))
	return keypairFromSeed(extended[:32], curve, origin)
}

// GenerateKeypair returns a random keypair on the given curve
func GenerateKeypair(curve Curve, origin Origin) (*PublicKey, *PrivateKey, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}
	return keypairFromSeed(seed, curve, origin)
}

func keypairFromSeed(seed []byte, curve Curve, origin Origin) (*PublicKey, *PrivateKey, error) {
	priv := &PrivateKey{
		Curve:  curve,
		Origin: origin,
		Seed:   append([]byte{}, seed...),
	}

	var keyBytes []byte
	switch curve {
	case CurveEd25519:
		edPriv := ed25519.NewKeyFromSeed(seed)
		keyBytes = append([]byte{}, edPriv.Public().(ed25519.PublicKey)...)
	case CurveP256:
		ecPriv, err := p256KeyFromSeed(seed)
		if err != nil {
			return nil, nil, err
		}
		keyBytes = elliptic.Marshal(elliptic.P256(), ecPriv.X, ecPriv.Y)
	case CurveSecp256k1:
		_, ecPub := btcec.PrivKeyFromBytes(btcec.S256(), seed)
		keyBytes = ecPub.SerializeUncompressed()
	default:
		return nil, nil, fmt.Errorf("%w: curve %d", ErrUnknownAlgorithm, curve)
	}

	pub := &PublicKey{
		Curve:  curve,
		Origin: origin,
		Key:    keyBytes,
	}
	return pub, priv, nil
}

// PublicKey recomputes the public half of the keypair
func (p *PrivateKey) PublicKey() (*PublicKey, error) {
	pub, _, err := keypairFromSeed(p.Seed, p.Curve, p.Origin)
	return pub, err
}

// Sign signs data with the private key; ed25519 signs the raw bytes,
// the ECDSA curves sign the sha256 digest
func (p *PrivateKey) Sign(data []byte) ([]byte, error) {
	switch p.Curve {
	case CurveEd25519:
		edPriv := ed25519.NewKeyFromSeed(p.Seed)
		return ed25519.Sign(edPriv, data), nil
	case CurveP256:
		ecPriv, err := p256KeyFromSeed(p.Seed)
		if err != nil {
			return nil, err
		}
		digest := sha256.Sum256(data)
		return ecdsa.SignASN1(rand.Reader, ecPriv, digest[:])
	case CurveSecp256k1:
		ecPriv, _ := btcec.PrivKeyFromBytes(btcec.S256(), p.Seed)
		digest := sha256.Sum256(data)
		sig, err := ecPriv.Sign(digest[:])
		if err != nil {
			return nil, err
		}
		return sig.Serialize(), nil
	default:
		return nil, fmt.Errorf("%w: curve %d", ErrUnknownAlgorithm, p.Curve)
	}
}

// Verify reports whether sig is a valid signature of data under pub
func Verify(pub *PublicKey, data []byte, sig []byte) bool {
	switch pub.Curve {
	case CurveEd25519:
		if len(pub.Key) != ed25519.PublicKeySize {
			return false
		}
		return ed25519.Verify(ed25519.PublicKey(pub.Key), data, sig)
	case CurveP256:
		x, y := elliptic.Unmarshal(elliptic.P256(), pub.Key)
		if x == nil {
			return false
		}
		ecPub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		digest := sha256.Sum256(data)
		return ecdsa.VerifyASN1(ecPub, digest[:], sig)
	case CurveSecp256k1:
		ecPub, err := btcec.ParsePubKey(pub.Key, btcec.S256())
		if err != nil {
			return false
		}
		parsedSig, err := btcec.ParseDERSignature(sig, btcec.S256())
		if err != nil {
			return false
		}
		digest := sha256.Sum256(data)
		return parsedSig.Verify(digest[:], ecPub)
	default:
		return false
	}
}

// DeriveAddress returns the tagged chain address of a public key
func DeriveAddress(pub *PublicKey, algo HashAlgo) ([]byte, error) {
	return Hash(algo, pub.Marshal())
}

func p256KeyFromSeed(seed []byte) (*ecdsa.PrivateKey, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(seed)
	d.Mod(d, new(big.Int).Sub(curve.Params().N, big.NewInt(1)))
	d.Add(d, big.NewInt(1))

	priv := &ecdsa.PrivateKey{}
	priv.Curve = curve
	priv.D = d
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}
