package common

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
)

// Sha256Hex returns the SHA-256 digest of the input encoded as lowercase hex.
func Sha256Hex(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Md5Hex returns the MD5 digest of the input encoded as lowercase hex. The
// redirect payment gateway signs its form payloads and confirmation callbacks
// with MD5 over a tilde-joined field list.
func Md5Hex(input string) string {
	sum := md5.Sum([]byte(input))
	return hex.EncodeToString(sum[:])
}
