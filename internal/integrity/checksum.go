package integrity

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
)

// VerifyMD5 reports whether the MD5 digest of data equals want.
func VerifyMD5(data []byte, want [md5.Size]byte) bool {
	got := md5.Sum(data)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// VerifySHA256 reports whether the SHA-256 digest of data equals want.
func VerifySHA256(data []byte, want [sha256.Size]byte) bool {
	got := sha256.Sum256(data)
	return subtle.ConstantTimeCompare(got[:], want[:]) == 1
}

// MD5 returns the MD5 digest of data as an array.
func MD5(data []byte) [md5.Size]byte {
	return md5.Sum(data)
}

// SHA256 returns the SHA-256 digest of data as an array.
func SHA256(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}
