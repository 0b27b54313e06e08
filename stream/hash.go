package stream

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/crc32"

	"github.com/Neumenon/jsox/jsox"
)

// ComputeCRC computes the CRC-32 (IEEE) of data.
func ComputeCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// VerifyCRC reports whether data matches the expected CRC-32.
func VerifyCRC(data []byte, expected uint32) bool {
	return ComputeCRC(data) == expected
}

// StateHash computes sha256(compact JSOX text of value), as written by a
// fresh default stringifier. Both ends of a stream compute it on the
// decoded value, so it does not depend on class headers sent earlier.
func StateHash(value *jsox.Value) ([32]byte, error) {
	text, err := jsox.Stringify(value)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256([]byte(text)), nil
}

// StateHashBytes computes SHA-256 of raw bytes.
// Use this when you already have the canonical text.
func StateHashBytes(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// VerifyBase checks if the current state hash matches the expected base.
func VerifyBase(current, expected [32]byte) bool {
	return current == expected
}

// HashToHex converts a 32-byte hash to lowercase hex string.
func HashToHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// HexToHash parses a 64-character hex string to a 32-byte hash.
func HexToHash(s string) ([32]byte, bool) {
	var h [32]byte
	if len(s) != 64 {
		return h, false
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, false
	}
	return h, true
}
