package imah

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/muurk/rotortool/internal/container"
	"github.com/muurk/rotortool/internal/fwimage"
	"github.com/muurk/rotortool/internal/keyring"
)

var testScramble = [16]byte{
	0x10, 0x32, 0x54, 0x76, 0x98, 0xBA, 0xDC, 0xFE,
	0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF,
}

func sampleChunks() []PackChunk {
	return []PackChunk{
		{ID: "bldr", LoadAddr: 0x0800_0000, Data: []byte("BOOT-STAGE-ONE..")},
		{ID: "app0", LoadAddr: 0x0801_0000, Encrypt: true, Data: bytes.Repeat([]byte{0xC0, 0xDE}, 40)},
		{ID: "para", Data: []byte("flight_params_v2")},
	}
}

func testPack(t *testing.T, d *Driver, opts PackOptions, chunks []PackChunk) []byte {
	t.Helper()
	raw, err := d.Pack(opts, chunks)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	return raw
}

func packOptions() PackOptions {
	return PackOptions{
		Model:       "FC-550 PRO",
		CipherSlot:  "UFIE",
		ScrambleKey: testScramble,
	}
}

func TestProbe(t *testing.T) {
	d := New(keyring.Builtin())
	if !d.Probe([]byte("IM*H\x01\x00\x00\x00")) {
		t.Error("Probe rejected the IMaH magic")
	}
	if d.Probe([]byte{0x78, 0x56, 0x34, 0x12}) {
		t.Error("Probe claimed an xV4 prefix")
	}
	if d.Probe([]byte("IM")) {
		t.Error("Probe claimed a 2-byte prefix")
	}
}

func TestParseHeader(t *testing.T) {
	d := New(keyring.Builtin())
	raw := testPack(t, d, packOptions(), sampleChunks())
	img := fwimage.FromBytes(raw)

	hdr, err := d.ParseHeader(img)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if hdr.Format != FormatName {
		t.Errorf("Format = %q, want %q", hdr.Format, FormatName)
	}
	if hdr.Model != "FC-550 PRO" {
		t.Errorf("Model = %q", hdr.Model)
	}
	if hdr.SectionCount != 3 {
		t.Errorf("SectionCount = %d, want 3", hdr.SectionCount)
	}
	if hdr.DeclaredSize != len(raw) {
		t.Errorf("DeclaredSize = %d, want %d", hdr.DeclaredSize, len(raw))
	}
	if hdr.Signed {
		t.Error("unsigned pack reported as signed")
	}
	if hdr.SignatureStatus != container.StatusSkipped {
		t.Errorf("SignatureStatus = %v, want skipped", hdr.SignatureStatus)
	}
}

func TestParseHeaderErrors(t *testing.T) {
	d := New(keyring.Builtin())
	good := testPack(t, d, packOptions(), sampleChunks())

	tests := []struct {
		name    string
		mutate  func(img []byte) []byte
		check   func(error) bool
		errName string
	}{
		{
			name:    "short image",
			mutate:  func(img []byte) []byte { return img[:32] },
			check:   container.IsTruncatedImage,
			errName: "TruncatedImage",
		},
		{
			name: "bad magic",
			mutate: func(img []byte) []byte {
				img[2] = 'X'
				return img
			},
			check:   container.IsBadMagic,
			errName: "BadMagic",
		},
		{
			name: "unsupported version",
			mutate: func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[4:8], 2)
				return img
			},
			check:   container.IsUnsupportedVersion,
			errName: "UnsupportedVersion",
		},
		{
			name: "declared total beyond file",
			mutate: func(img []byte) []byte {
				return img[:len(img)-1]
			},
			check:   container.IsTruncatedImage,
			errName: "TruncatedImage",
		},
		{
			name: "inconsistent sizes",
			mutate: func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[16:20], 1) // payload size
				return img
			},
			check:   container.IsBadMagic,
			errName: "BadMagic",
		},
		{
			name: "chunk count over limit",
			mutate: func(img []byte) []byte {
				binary.LittleEndian.PutUint32(img[80:84], container.MaxSections+1)
				return img
			},
			check:   container.IsSectionOutOfBounds,
			errName: "SectionOutOfBounds",
		},
		{
			name: "chunk outside payload",
			mutate: func(img []byte) []byte {
				raw := img[fixedHeaderSize:]
				binary.LittleEndian.PutUint32(raw[8:12], 1<<30) // size of chunk 0
				return img
			},
			check:   container.IsSectionOutOfBounds,
			errName: "SectionOutOfBounds",
		},
		{
			name: "overlapping chunks",
			mutate: func(img []byte) []byte {
				raw := img[fixedHeaderSize+chunkEntrySize:]
				binary.LittleEndian.PutUint32(raw[4:8], 4) // chunk 1 into chunk 0
				return img
			},
			check:   container.IsSectionOutOfBounds,
			errName: "SectionOutOfBounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := tt.mutate(append([]byte(nil), good...))
			_, err := d.ParseHeader(fwimage.FromBytes(mutated))
			if err == nil {
				t.Fatal("ParseHeader() accepted a corrupt image")
			}
			if !tt.check(err) {
				t.Errorf("error = %v, want %s", err, tt.errName)
			}
		})
	}
}

func TestEnumerateSections(t *testing.T) {
	d := New(keyring.Builtin())
	img := fwimage.FromBytes(testPack(t, d, packOptions(), sampleChunks()))

	secs, err := d.EnumerateSections(img)
	if err != nil {
		t.Fatalf("EnumerateSections() error = %v", err)
	}
	if len(secs) != 3 {
		t.Fatalf("got %d sections, want 3", len(secs))
	}

	wantNames := []string{"bldr", "app0", "para"}
	wantKinds := []container.Kind{container.KindBootloader, container.KindApplication, container.KindConfig}
	for i, sec := range secs {
		if sec.Name != wantNames[i] {
			t.Errorf("section %d name = %q, want %q", i, sec.Name, wantNames[i])
		}
		if sec.Kind != wantKinds[i] {
			t.Errorf("section %d kind = %v, want %v", i, sec.Kind, wantKinds[i])
		}
	}
	if secs[0].LoadAddress != 0x0800_0000 {
		t.Errorf("bldr load address = 0x%08X", secs[0].LoadAddress)
	}
	if secs[1].Coding != container.CodingAES {
		t.Errorf("app0 coding = %v, want aes", secs[1].Coding)
	}
}

func TestDecodeSections(t *testing.T) {
	d := New(keyring.Builtin())
	want := sampleChunks()
	img := fwimage.FromBytes(testPack(t, d, packOptions(), want))

	secs, err := d.EnumerateSections(img)
	if err != nil {
		t.Fatal(err)
	}

	for i, sec := range secs {
		dec, err := d.DecodeSection(img, sec)
		if err != nil {
			t.Fatalf("DecodeSection(%s) error = %v", sec.Name, err)
		}
		if dec.Status != container.StatusVerified {
			t.Errorf("%s status = %v, want verified (%s)", sec.Name, dec.Status, dec.Note)
		}
		if !bytes.Equal(dec.Data, want[i].Data) {
			t.Errorf("%s decoded bytes do not match packed payload", sec.Name)
		}
	}
}

func TestDecodeSectionMissingCipherKey(t *testing.T) {
	packer := New(keyring.Builtin())
	raw := testPack(t, packer, packOptions(), sampleChunks())

	d := New(keyring.New()) // no UFIE key
	img := fwimage.FromBytes(raw)
	secs, err := d.EnumerateSections(img)
	if err != nil {
		t.Fatal(err)
	}

	dec, err := d.DecodeSection(img, secs[1])
	if err != nil {
		t.Fatalf("DecodeSection() error = %v", err)
	}
	if dec.Status != container.StatusSkipped {
		t.Errorf("status = %v, want verification-skipped", dec.Status)
	}

	// Plain chunks still verify without any keys.
	dec, err = d.DecodeSection(img, secs[0])
	if err != nil {
		t.Fatal(err)
	}
	if dec.Status != container.StatusVerified {
		t.Errorf("plain chunk status = %v, want verified", dec.Status)
	}
}

func TestDecodeSectionCorruptionIsolated(t *testing.T) {
	d := New(keyring.Builtin())
	raw := testPack(t, d, packOptions(), sampleChunks())
	img0 := fwimage.FromBytes(raw)
	secs, err := d.EnumerateSections(img0)
	if err != nil {
		t.Fatal(err)
	}

	corrupt := append([]byte(nil), raw...)
	corrupt[secs[2].Offset+3] ^= 0x80
	img := fwimage.FromBytes(corrupt)

	for i, sec := range secs {
		dec, err := d.DecodeSection(img, sec)
		if err != nil {
			t.Fatalf("DecodeSection(%s) error = %v", sec.Name, err)
		}
		want := container.StatusVerified
		if i == 2 {
			want = container.StatusFailed
		}
		if dec.Status != want {
			t.Errorf("%s status = %v, want %v", sec.Name, dec.Status, want)
		}
	}
}

func TestDecodeZeroSizeEncryptedChunk(t *testing.T) {
	packer := New(keyring.Builtin())
	raw := testPack(t, packer, packOptions(), sampleChunks())

	// Shrink the encrypted app0 chunk to zero stored bytes.
	entry := raw[fixedHeaderSize+chunkEntrySize:]
	binary.LittleEndian.PutUint32(entry[8:12], 0)

	// The outcome must not depend on keyring contents: a zero-size
	// ciphertext is structurally invalid whether or not the cipher
	// key is present.
	for _, ring := range []*keyring.Ring{keyring.Builtin(), keyring.New()} {
		d := New(ring)
		img := fwimage.FromBytes(raw)
		secs, err := d.EnumerateSections(img)
		if err != nil {
			t.Fatalf("EnumerateSections() error = %v", err)
		}
		if _, err := d.DecodeSection(img, secs[1]); !container.IsDecryptError(err) {
			t.Errorf("DecodeSection() error = %v, want DecryptError", err)
		}
	}
}

func TestSignatureVerification(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	ring := keyring.Builtin()
	ring.AddRSA("PRAK", &priv.PublicKey)
	d := New(ring)

	opts := packOptions()
	opts.AuthSlot = "PRAK"
	opts.SignatureSize = priv.Size()
	raw := testPack(t, d, opts, sampleChunks())

	headerSize := int(binary.LittleEndian.Uint32(raw[8:12]))

	// Zero signature from Pack must fail against a trusted key.
	hdr, err := d.ParseHeader(fwimage.FromBytes(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !hdr.Signed {
		t.Fatal("signed pack reported as unsigned")
	}
	if hdr.SignatureStatus != container.StatusFailed {
		t.Errorf("zeroed signature status = %v, want failed", hdr.SignatureStatus)
	}

	// A real signature verifies.
	digest := sha256.Sum256(raw[:headerSize])
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatal(err)
	}
	copy(raw[headerSize:], sig)

	hdr, err = d.ParseHeader(fwimage.FromBytes(raw))
	if err != nil {
		t.Fatal(err)
	}
	if hdr.SignatureStatus != container.StatusVerified {
		t.Errorf("signature status = %v, want verified", hdr.SignatureStatus)
	}

	// Without the trusted key the signature is skipped, not failed.
	d2 := New(keyring.Builtin())
	hdr, err = d2.ParseHeader(fwimage.FromBytes(raw))
	if err != nil {
		t.Fatal(err)
	}
	if hdr.SignatureStatus != container.StatusSkipped {
		t.Errorf("untrusted signature status = %v, want skipped", hdr.SignatureStatus)
	}
}

func TestPackExtractRoundTrip(t *testing.T) {
	d := New(keyring.Builtin())
	want := sampleChunks()
	raw1 := testPack(t, d, packOptions(), want)
	img1 := fwimage.FromBytes(raw1)

	secs, err := d.EnumerateSections(img1)
	if err != nil {
		t.Fatal(err)
	}

	repack := make([]PackChunk, len(secs))
	for i, sec := range secs {
		dec, err := d.DecodeSection(img1, sec)
		if err != nil {
			t.Fatal(err)
		}
		repack[i] = PackChunk{
			ID:       sec.Name,
			Encrypt:  want[i].Encrypt,
			LoadAddr: sec.LoadAddress,
			Data:     dec.Data,
		}
	}

	raw2 := testPack(t, d, packOptions(), repack)
	if !bytes.Equal(raw1, raw2) {
		t.Error("extract/repack round trip is not byte-identical")
	}
}
