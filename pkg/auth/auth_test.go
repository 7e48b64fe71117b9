package auth

import (
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

func signMessage(t *testing.T, message string) (string, string) {
	t.Helper()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}

	prefixedMessage := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixedMessage))

	signature, err := crypto.Sign(hash.Bytes(), privateKey)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	return address, "0x" + hex.EncodeToString(signature)
}

func TestVerifyEIP191Signature(t *testing.T) {
	message := "claim my beer"
	address, signature := signMessage(t, message)

	recovered, err := VerifyEIP191Signature(message, signature)
	if err != nil {
		t.Fatalf("VerifyEIP191Signature failed: %v", err)
	}
	if recovered.Hex() != address {
		t.Fatalf("recovered %s, want %s", recovered.Hex(), address)
	}
}

func TestVerifyEIP191Signature_WrongMessage(t *testing.T) {
	_, signature := signMessage(t, "original message")

	recovered, err := VerifyEIP191Signature("tampered message", signature)
	if err == nil {
		// Recovery over a different message yields a different address, not
		// necessarily an error.
		original, _ := signMessage(t, "original message")
		if recovered.Hex() == original {
			t.Fatal("tampered message recovered the signer address")
		}
	}
}

func TestVerifyEIP191Signature_Malformed(t *testing.T) {
	if _, err := VerifyEIP191Signature("msg", "0xzz"); err == nil {
		t.Fatal("expected error for non-hex signature")
	}
	if _, err := VerifyEIP191Signature("msg", "0xabcd"); err == nil {
		t.Fatal("expected error for short signature")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x000000000000000000000000000000000000dEaD")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr.Hex() != "0x000000000000000000000000000000000000dEaD" {
		t.Fatalf("unexpected checksum: %s", addr.Hex())
	}

	for _, bad := range []string{"", "dead", "0x123", "0xzz00000000000000000000000000000000000000"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Fatalf("ParseAddress(%q) expected error", bad)
		}
	}
}

func TestAdminTokenRoundTrip(t *testing.T) {
	const secret = "test-secret"

	tok, err := GenerateAdminToken(secret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}
	if err := ValidateAdminToken(secret, tok); err != nil {
		t.Fatalf("ValidateAdminToken failed: %v", err)
	}
	if err := ValidateAdminToken("other-secret", tok); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestAdminTokenExpired(t *testing.T) {
	const secret = "test-secret"

	tok, err := GenerateAdminToken(secret, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAdminToken failed: %v", err)
	}
	if err := ValidateAdminToken(secret, tok); err == nil {
		t.Fatal("expected validation failure for expired token")
	}
}
