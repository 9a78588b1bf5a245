package wallet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rehan1020/tgbot/internal/domain"
)

const testEVMKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(domain.ChainEthereum, testEVMKey, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if strings.Contains(string(blob), testEVMKey) {
		t.Fatal("ciphertext blob must not contain the plaintext key")
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testEVMKey {
		t.Errorf("DecryptKey = %q, want original key", got)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(domain.ChainSolana, "5HueCGU8rMjxEXxiPuD5BDku4MkFqeZyd4dZ1jvhTVqvbTLvyTJ", "correct")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("decryption with the wrong password should fail")
	}
}

func TestLoadKeyRaw(t *testing.T) {
	key, err := LoadKey(KeyConfig{Chain: domain.ChainEthereum, RawKey: "0x" + testEVMKey})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if key != testEVMKey {
		t.Errorf("LoadKey = %q, want key with 0x stripped", key)
	}

	if _, err := LoadKey(KeyConfig{Chain: domain.ChainEthereum, RawKey: "nothex"}); err == nil {
		t.Error("invalid hex should be rejected for EVM chains")
	}
	if _, err := LoadKey(KeyConfig{Chain: domain.ChainEthereum, RawKey: "abcd"}); err == nil {
		t.Error("short key should be rejected for EVM chains")
	}
}

func TestLoadKeyEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(domain.ChainEthereum, testEVMKey, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	key, err := LoadKey(KeyConfig{Chain: domain.ChainEthereum, EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if key != testEVMKey {
		t.Errorf("LoadKey = %q, want decrypted key", key)
	}
}

func TestLoadKeyUnconfigured(t *testing.T) {
	_, err := LoadKey(KeyConfig{Chain: domain.ChainSolana})
	if err == nil {
		t.Fatal("LoadKey with no source should fail")
	}
	if !errors.Is(err, domain.ErrWalletLocked) {
		t.Errorf("error should wrap ErrWalletLocked, got %v", err)
	}
}
