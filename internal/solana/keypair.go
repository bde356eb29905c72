package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

var ErrInvalidSecret = errors.New("invalid secret key")

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

func NewKeypair() (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{priv: priv}, nil
}

// KeypairFromBytes accepts a 64-byte secret (seed || public) or a 32-byte seed.
func KeypairFromBytes(b []byte) (Keypair, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return Keypair{priv: ed25519.NewKeyFromSeed(b)}, nil
	case ed25519.PrivateKeySize:
		kp := Keypair{priv: ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])}
		if string(kp.priv[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
			return Keypair{}, fmt.Errorf("%w: public half does not match seed", ErrInvalidSecret)
		}
		return kp, nil
	default:
		return Keypair{}, fmt.Errorf("%w: length %d", ErrInvalidSecret, len(b))
	}
}

func KeypairFromBase58(s string) (Keypair, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	return KeypairFromBytes(raw)
}

func (k Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// Secret returns the 64-byte secret in the layout wallets export.
func (k Keypair) Secret() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

func (k Keypair) Base58Secret() string {
	return base58.Encode(k.priv)
}

func (k Keypair) IsZero() bool {
	return len(k.priv) == 0
}
