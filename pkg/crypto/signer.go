// Package crypto provides secp256k1 request signing for vault operations.
// Clients sign a canonical digest of each mutating request; the API layer
// recovers the signer address and matches it against the request's address.
package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a secp256k1 key pair and its derived address
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// GenerateKey creates a Signer with a fresh random key pair
func GenerateKey() (*Signer, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// FromPrivateKeyHex creates a Signer from a hex-encoded private key,
// with or without the 0x prefix
func FromPrivateKeyHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &Signer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the address derived from the public key
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs a 32-byte digest, returning a 65-byte [R || S || V] signature
// with V in {0, 1}
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// SignRequest signs the canonical digest of a vault operation
func (s *Signer) SignRequest(op string, addr common.Address, nonce uint64, fields ...string) ([]byte, error) {
	return s.Sign(RequestDigest(op, addr, nonce, fields...))
}

// RequestDigest builds the canonical 32-byte digest of a vault operation:
// Keccak256 of "synthvault|<op>|<lowercase address>|<nonce>|<field>|...".
// Signer and verifier must pass fields in the same order.
func RequestDigest(op string, addr common.Address, nonce uint64, fields ...string) []byte {
	parts := []string{
		"synthvault",
		op,
		strings.ToLower(addr.Hex()),
		fmt.Sprintf("%d", nonce),
	}
	parts = append(parts, fields...)
	return crypto.Keccak256([]byte(strings.Join(parts, "|")))
}

// RecoverAddress recovers the signer's address from a digest and a 65-byte
// signature. Accepts V in {0, 1} as well as the legacy {27, 28} encoding.
func RecoverAddress(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}
	if len(digest) != 32 {
		return common.Address{}, fmt.Errorf("invalid digest length: %d", len(digest))
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	publicKeyBytes, err := crypto.Ecrecover(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	publicKey, err := crypto.UnmarshalPubkey(publicKeyBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unmarshal public key: %w", err)
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// VerifyRequest checks that signature was produced by addr over the canonical
// digest of the given operation
func VerifyRequest(addr common.Address, signature []byte, op string, nonce uint64, fields ...string) bool {
	recovered, err := RecoverAddress(RequestDigest(op, addr, nonce, fields...), signature)
	if err != nil {
		return false
	}
	return recovered == addr
}
