package keyring

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinSlots(t *testing.T) {
	ring := Builtin()

	for _, slot := range []string{"xv4:0a", "UFIE", "TBIE"} {
		key, ok := ring.AES(slot)
		if !ok {
			t.Errorf("builtin slot %q missing", slot)
			continue
		}
		if len(key) != 16 {
			t.Errorf("builtin slot %q has %d-byte key, want 16", slot, len(key))
		}
	}

	if _, ok := ring.AES("nope"); ok {
		t.Error("lookup of unknown slot succeeded")
	}
	if _, ok := ring.RSA("PRAK"); ok {
		t.Error("builtin ring should carry no RSA keys")
	}
}

func TestAddAESValidation(t *testing.T) {
	ring := New()
	if err := ring.AddAES("short", []byte{1, 2, 3}); err == nil {
		t.Error("AddAES accepted a 3-byte key")
	}
	if err := ring.AddAES("ok", make([]byte, 16)); err != nil {
		t.Errorf("AddAES rejected a 16-byte key: %v", err)
	}
}

func TestLoadKeyfile(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}

	aesKey := bytes.Repeat([]byte{0x42}, 16)
	content := fmt.Sprintf(`version: 1
keys:
  - slot: "UFIE"
    kind: aes
    material: %s
  - slot: "PRAK"
    kind: rsa-public
    material: %s
`, hex.EncodeToString(aesKey), hex.EncodeToString(der))

	path := filepath.Join(t.TempDir(), "keys.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	ring := Builtin()
	if err := ring.LoadKeyfile(path); err != nil {
		t.Fatalf("LoadKeyfile() error = %v", err)
	}

	// Key file overrides the builtin UFIE key.
	got, ok := ring.AES("UFIE")
	if !ok || !bytes.Equal(got, aesKey) {
		t.Errorf("UFIE key not overridden by key file")
	}

	pub, ok := ring.RSA("PRAK")
	if !ok {
		t.Fatal("PRAK key missing after load")
	}
	if pub.N.Cmp(priv.PublicKey.N) != 0 {
		t.Error("loaded RSA key does not match")
	}
}

func TestLoadKeyfileRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "wrong version", content: "version: 2\nkeys: []\n"},
		{name: "missing slot", content: "version: 1\nkeys:\n  - kind: aes\n    material: \"00112233445566778899aabbccddeeff\"\n"},
		{name: "bad hex", content: "version: 1\nkeys:\n  - slot: X\n    kind: aes\n    material: \"zz\"\n"},
		{name: "unknown kind", content: "version: 1\nkeys:\n  - slot: X\n    kind: des\n    material: \"00\"\n"},
		{name: "not yaml", content: "{{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "keys.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			if err := New().LoadKeyfile(path); err == nil {
				t.Error("LoadKeyfile() accepted bad input")
			}
		})
	}
}

func TestSlotsSorted(t *testing.T) {
	ring := Builtin()
	slots := ring.Slots()
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i-1].Name >= slots[i].Name {
			t.Errorf("slots not sorted: %q before %q", slots[i-1].Name, slots[i].Name)
		}
	}
}
