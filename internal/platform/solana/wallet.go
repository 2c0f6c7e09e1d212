package solana

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/swapbot/internal/domain"
)

// Keypair is an in-memory ed25519 signing key.
type Keypair struct {
	key solanago.PrivateKey
}

// KeypairFromBase58 parses a base58-encoded 64-byte secret key, the format
// wallets export.
func KeypairFromBase58(secret string) (*Keypair, error) {
	key, err := solanago.PrivateKeyFromBase58(strings.TrimSpace(secret))
	if err != nil {
		return nil, fmt.Errorf("solana: parse secret key: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("solana: parse secret key: invalid length %d", len(key))
	}
	return &Keypair{key: key}, nil
}

// NewRandomKeypair generates a fresh key. Used by tests and key tooling.
func NewRandomKeypair() (*Keypair, error) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("solana: generate key: %w", err)
	}
	return &Keypair{key: key}, nil
}

// PublicKey returns the base58 address.
func (k *Keypair) PublicKey() string {
	return k.key.PublicKey().String()
}

// Sign signs message with the secret key.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	sig, err := k.key.Sign(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	return sig[:], nil
}

// Base58 returns the secret key in wallet export format.
func (k *Keypair) Base58() string {
	return k.key.String()
}

var _ domain.Wallet = (*Keypair)(nil)
