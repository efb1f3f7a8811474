package crypto

import (
	"fmt"
	"io"
)

// ReadHash consumes a tagged hash from the stream: one algorithm byte
// then exactly HashSize bytes
func ReadHash(r io.Reader) ([]byte, error) {
	tag := make([]byte, 1)
	if _, err := io.ReadFull(r, tag); err != nil {
		return nil, err
	}

	size, err := HashSize(tag[0])
	if err != nil {
		return nil, err
	}

	result := make([]byte, 1+size)
	result[0] = tag[0]
	if _, err := io.ReadFull(r, result[1:]); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadPublicKey consumes a tagged public key from the stream: curve and
// origin bytes then exactly KeySize bytes
func ReadPublicKey(r io.Reader) (*PublicKey, error) {
	tags := make([]byte, 2)
	if _, err := io.ReadFull(r, tags); err != nil {
		return nil, err
	}

	size, err := KeySize(tags[0])
	if err != nil {
		return nil, err
	}
	if !ValidOrigin(tags[1]) {
		return nil, fmt.Errorf("%w: key origin %d", ErrUnknownAlgorithm, tags[1])
	}

	key := make([]byte, size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}

	return &PublicKey{
		Curve:  tags[0],
		Origin: tags[1],
		Key:    key,
	}, nil
}
