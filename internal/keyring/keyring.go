package keyring

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Ring maps key slot names to key material. Slot names are the
// four-character tags container headers use to reference keys ("UFIE",
// "PRAK") plus the coding-byte slots of the xV4 format ("xv4:0a").
//
// A lookup miss is an ordinary outcome, not an error: sections whose
// key is absent are extracted in stored form and marked
// verification-skipped.
type Ring struct {
	aes map[string][]byte
	rsa map[string]*rsa.PublicKey
}

// New returns an empty ring.
func New() *Ring {
	return &Ring{
		aes: make(map[string][]byte),
		rsa: make(map[string]*rsa.PublicKey),
	}
}

// Builtin returns a ring preloaded with the community-known AES keys.
// RSA verification keys are only ever loaded from a key file.
func Builtin() *Ring {
	r := New()
	for slot, keyHex := range builtinAES {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			panic(fmt.Sprintf("builtin key %q: %v", slot, err))
		}
		r.aes[slot] = key
	}
	return r
}

// Community-recovered module scrambling keys, by slot tag.
var builtinAES = map[string]string{
	"xv4:0a": "9f5c7a1e3b8d40c2a6e1f074d9283b65",
	"UFIE":   "46b1d6c3a0e852f79d04317c8ba2e5f0",
	"TBIE":   "0da47c29e6b18f35c2709ae4d1f6835b",
}

// AddAES registers an AES key under slot, replacing any previous one.
func (r *Ring) AddAES(slot string, key []byte) error {
	if len(key) != 16 {
		return fmt.Errorf("slot %q: AES key must be 16 bytes, got %d", slot, len(key))
	}
	r.aes[slot] = key
	return nil
}

// AddRSA registers an RSA public key under slot.
func (r *Ring) AddRSA(slot string, pub *rsa.PublicKey) {
	r.rsa[slot] = pub
}

// AES returns the AES key registered under slot.
func (r *Ring) AES(slot string) ([]byte, bool) {
	key, ok := r.aes[slot]
	return key, ok
}

// RSA returns the RSA public key registered under slot.
func (r *Ring) RSA(slot string) (*rsa.PublicKey, bool) {
	pub, ok := r.rsa[slot]
	return pub, ok
}

// Slot describes one registered key for display purposes. Key material
// itself is never listed.
type Slot struct {
	Name string
	Kind string // "aes" or "rsa-public"
}

// Slots returns all registered slots sorted by name.
func (r *Ring) Slots() []Slot {
	out := make([]Slot, 0, len(r.aes)+len(r.rsa))
	for name := range r.aes {
		out = append(out, Slot{Name: name, Kind: "aes"})
	}
	for name := range r.rsa {
		out = append(out, Slot{Name: name, Kind: "rsa-public"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// keyfile is the on-disk YAML schema.
type keyfile struct {
	Version int            `yaml:"version"`
	Keys    []keyfileEntry `yaml:"keys"`
}

type keyfileEntry struct {
	Slot     string `yaml:"slot"`
	Kind     string `yaml:"kind"`
	Material string `yaml:"material"`
}

// LoadKeyfile merges keys from a YAML key file into the ring. Entries
// replace builtin keys with the same slot name, so a user-supplied
// file always wins.
//
// Schema:
//
//	version: 1
//	keys:
//	  - slot: "UFIE"
//	    kind: aes
//	    material: <32 hex chars>
//	  - slot: "PRAK"
//	    kind: rsa-public
//	    material: <hex-encoded PKIX DER>
func (r *Ring) LoadKeyfile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var kf keyfile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return fmt.Errorf("failed to parse key file: %w", err)
	}
	if kf.Version != 1 {
		return fmt.Errorf("unsupported key file version: %d (expected 1)", kf.Version)
	}

	for i, entry := range kf.Keys {
		if entry.Slot == "" {
			return fmt.Errorf("key entry %d: missing slot name", i)
		}
		material, err := hex.DecodeString(entry.Material)
		if err != nil {
			return fmt.Errorf("key entry %q: bad hex material: %w", entry.Slot, err)
		}

		switch entry.Kind {
		case "aes":
			if err := r.AddAES(entry.Slot, material); err != nil {
				return fmt.Errorf("key entry %q: %w", entry.Slot, err)
			}
		case "rsa-public":
			pub, err := x509.ParsePKIXPublicKey(material)
			if err != nil {
				return fmt.Errorf("key entry %q: bad public key: %w", entry.Slot, err)
			}
			rsaPub, ok := pub.(*rsa.PublicKey)
			if !ok {
				return fmt.Errorf("key entry %q: not an RSA public key", entry.Slot)
			}
			r.AddRSA(entry.Slot, rsaPub)
		default:
			return fmt.Errorf("key entry %q: unknown kind %q", entry.Slot, entry.Kind)
		}
	}

	return nil
}
