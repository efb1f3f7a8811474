package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

/*
Every hash and every public key on the wire starts with a one byte
algorithm tag; the tag fixes the payload length, which makes the
formats self-delimiting:

Hash
+------+--------------------+
| Algo |       Digest       |
+------+--------------------+
(bytes)
Algo        1
Digest      HashSize(Algo)

PublicKey
+-------+--------+----------+
| Curve | Origin |   Key    |
+-------+--------+----------+
(bytes)
Curve       1
Origin      1
Key         KeySize(Curve)
*/

// HashAlgo is the hash algorithm tag
type HashAlgo = uint8

const (
	SHA256  = HashAlgo(0)
	SHA512  = HashAlgo(1)
	SHA3256 = HashAlgo(2)
	SHA3512 = HashAlgo(3)
	Blake2b = HashAlgo(4)
)

// Curve is the elliptic curve tag of a key
type Curve = uint8

const (
	CurveEd25519   = Curve(0)
	CurveP256      = Curve(1)
	CurveSecp256k1 = Curve(2)
)

// Origin tags the family of hardware or software that produced a key
type Origin = uint8

const (
	OriginSoftware = Origin(0)
	OriginTPM      = Origin(1)
	OriginOnChain  = Origin(2)
)

// ErrUnknownAlgorithm reports an unrecognized hash or curve tag
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

var hashSizes = map[HashAlgo]int{
	SHA256:  sha256.Size,
	SHA512:  sha512.Size,
	SHA3256: 32,
	SHA3512: 64,
	Blake2b: blake2b.Size,
}

// 0x04 || X || Y for the ECDSA curves, raw 32 bytes for ed25519
var keySizes = map[Curve]int{
	CurveEd25519:   32,
	CurveP256:      65,
	CurveSecp256k1: 65,
}

// HashSize returns the digest length of the tagged algorithm
func HashSize(algo HashAlgo) (int, error) {
	size, ok := hashSizes[algo]
	if !ok {
		return 0, fmt.Errorf("%w: hash algo %d", ErrUnknownAlgorithm, algo)
	}
	return size, nil
}

// KeySize returns the raw key length of the tagged curve,
// excluding the curve and origin bytes
func KeySize(curve Curve) (int, error) {
	size, ok := keySizes[curve]
	if !ok {
		return 0, fmt.Errorf("%w: curve %d", ErrUnknownAlgorithm, curve)
	}
	return size, nil
}

// ValidOrigin reports whether the origin tag is recognized
func ValidOrigin(origin Origin) bool {
	return origin <= OriginOnChain
}

// OriginName returns the textual name of a key origin
func OriginName(origin Origin) string {
	switch origin {
	case OriginSoftware:
		return "software"
	case OriginTPM:
		return "tpm"
	case OriginOnChain:
		return "onchain"
	default:
		return fmt.Sprintf("origin(%d)", origin)
	}
}

// OriginFromName is the inverse of OriginName, used by the config loader
func OriginFromName(name string) (Origin, error) {
	switch name {
	case "software":
		return OriginSoftware, nil
	case "tpm":
		return OriginTPM, nil
	case "onchain":
		return OriginOnChain, nil
	default:
		return 0, fmt.Errorf("%w: origin %q", ErrUnknownAlgorithm, name)
	}
}

// Hash returns the tagged digest of data under the given algorithm
func Hash(algo HashAlgo, data []byte) ([]byte, error) {
	var digest []byte
	switch algo {
	case SHA256:
		d := sha256.Sum256(data)
		digest = d[:]
	case SHA512:
		d := sha512.Sum512(data)
		digest = d[:]
	case SHA3256:
		d := sha3.Sum256(data)
		digest = d[:]
	case SHA3512:
		d := sha3.Sum512(data)
		digest = d[:]
	case Blake2b:
		d := blake2b.Sum512(data)
		digest = d[:]
	default:
		return nil, fmt.Errorf("%w: hash algo %d", ErrUnknownAlgorithm, algo)
	}

	result := make([]byte, 0, 1+len(digest))
	result = append(result, algo)
	result = append(result, digest...)
	return result, nil
}

// CheckHash verifies that h is a well formed tagged hash
func CheckHash(h []byte) error {
	if len(h) == 0 {
		return errors.New("empty hash")
	}
	size, err := HashSize(h[0])
	if err != nil {
		return err
	}
	if len(h) != 1+size {
		return fmt.Errorf("invalid hash length %d for algo %d", len(h), h[0])
	}
	return nil
}
