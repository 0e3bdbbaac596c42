package integrity

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// DecryptError indicates structurally invalid ciphertext or key
// material. Unlike a checksum mismatch this is a hard failure: the
// bytes cannot be transformed at all.
type DecryptError struct {
	Message string
	Err     error
}

func (e *DecryptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decrypt: %s (caused by: %v)", e.Message, e.Err)
	}
	return fmt.Sprintf("decrypt: %s", e.Message)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// DecryptCBC decrypts AES-128-CBC ciphertext with a zero IV, the
// scrambling both container formats apply to protected sections. The
// ciphertext length must be a positive multiple of the AES block size.
func DecryptCBC(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptError{Message: fmt.Sprintf("bad key length %d", len(key)), Err: err}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &DecryptError{Message: fmt.Sprintf("ciphertext length %d is not a positive multiple of %d", len(ciphertext), aes.BlockSize)}
	}

	iv := make([]byte, aes.BlockSize)
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// EncryptCBC is the inverse of DecryptCBC, used when repacking a
// container. The plaintext length must be a positive multiple of the
// AES block size; padding policy belongs to the caller.
func EncryptCBC(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptError{Message: fmt.Sprintf("bad key length %d", len(key)), Err: err}
	}
	if len(plaintext) == 0 || len(plaintext)%aes.BlockSize != 0 {
		return nil, &DecryptError{Message: fmt.Sprintf("plaintext length %d is not a positive multiple of %d", len(plaintext), aes.BlockSize)}
	}

	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

// DecryptECBBlock decrypts a single AES block in ECB mode. The IMaH
// header stores its chunk scramble key as one AES block encrypted under
// the package cipher key.
func DecryptECBBlock(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptError{Message: fmt.Sprintf("bad key length %d", len(key)), Err: err}
	}
	if len(ciphertext) != aes.BlockSize {
		return nil, &DecryptError{Message: fmt.Sprintf("key slot is %d bytes, want one AES block", len(ciphertext))}
	}

	plaintext := make([]byte, aes.BlockSize)
	block.Decrypt(plaintext, ciphertext)
	return plaintext, nil
}

// EncryptECBBlock is the inverse of DecryptECBBlock, used by Pack.
func EncryptECBBlock(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &DecryptError{Message: fmt.Sprintf("bad key length %d", len(key)), Err: err}
	}
	if len(plaintext) != aes.BlockSize {
		return nil, &DecryptError{Message: fmt.Sprintf("key slot is %d bytes, want one AES block", len(plaintext))}
	}

	ciphertext := make([]byte, aes.BlockSize)
	block.Encrypt(ciphertext, plaintext)
	return ciphertext, nil
}

// VerifyRSASignature reports whether sig is a valid PKCS#1 v1.5
// SHA-256 signature over data. Mismatch is an expected outcome for
// repacked images and is reported as false, not an error.
func VerifyRSASignature(pub *rsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil
}
