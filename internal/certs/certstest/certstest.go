// Package certstest provides PEM fixtures for tests.
package certstest

import (
	"encoding/pem"
)

// Payload returns a deterministic payload of the given size derived from seed.
func Payload(seed byte, size int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = seed + byte(i*7)
	}
	return buf
}

// PEM returns the PEM encoding of Payload(seed, size) as a CERTIFICATE block.
func PEM(seed byte, size int) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: Payload(seed, size),
	}))
}
