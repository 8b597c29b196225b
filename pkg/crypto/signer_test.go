package crypto

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	// well-known hardhat dev key
	privHex := "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	wantAddr := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	signer, err := FromPrivateKeyHex(privHex)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if signer.Address() != wantAddr {
		t.Errorf("address = %s, want %s", signer.Address().Hex(), wantAddr.Hex())
	}

	// the 0x prefix is optional
	signer2, err := FromPrivateKeyHex(privHex[2:])
	if err != nil {
		t.Fatalf("failed to load unprefixed key: %v", err)
	}
	if signer2.Address() != wantAddr {
		t.Errorf("unprefixed address = %s, want %s", signer2.Address().Hex(), wantAddr.Hex())
	}
}

func TestSignAndRecoverRequest(t *testing.T) {
	signer, _ := GenerateKey()

	sig, err := signer.SignRequest("deposit", signer.Address(), 7, "1000")
	if err != nil {
		t.Fatalf("failed to sign request: %v", err)
	}
	if len(sig) != 65 {
		t.Errorf("signature length = %d, want 65", len(sig))
	}

	if !VerifyRequest(signer.Address(), sig, "deposit", 7, "1000") {
		t.Error("valid request signature rejected")
	}

	// any change to the signed fields must break verification
	if VerifyRequest(signer.Address(), sig, "deposit", 7, "1001") {
		t.Error("tampered amount verified")
	}
	if VerifyRequest(signer.Address(), sig, "withdraw", 7, "1000") {
		t.Error("wrong operation verified")
	}
	if VerifyRequest(signer.Address(), sig, "deposit", 8, "1000") {
		t.Error("wrong nonce verified")
	}

	// and so must a different claimed address
	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	if VerifyRequest(other, sig, "deposit", 7, "1000") {
		t.Error("foreign address verified")
	}
}

func TestRecoverAddressLegacyV(t *testing.T) {
	signer, _ := GenerateKey()
	digest := RequestDigest("cancel", signer.Address(), 1, "3")

	sig, err := signer.Sign(digest)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	// shift V to the legacy 27/28 encoding
	legacy := make([]byte, 65)
	copy(legacy, sig)
	legacy[64] += 27

	recovered, err := RecoverAddress(digest, legacy)
	if err != nil {
		t.Fatalf("failed to recover with legacy V: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), signer.Address().Hex())
	}
}

func TestRecoverAddressRejectsMalformed(t *testing.T) {
	digest := RequestDigest("deposit", common.Address{}, 0, "1")

	if _, err := RecoverAddress(digest, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for short signature")
	}
	if _, err := RecoverAddress([]byte("short"), make([]byte, 65)); err == nil {
		t.Error("expected error for short digest")
	}
}
