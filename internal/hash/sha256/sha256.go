// Package sha256 computes hex SHA-256 digests of streamed bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Digest is an io.Writer that hashes everything written to it. Pair it with
// io.TeeReader to fingerprint a body while it is copied elsewhere.
type Digest struct {
	h hash.Hash
	n int64
}

// New returns an empty digest.
func New() *Digest {
	return &Digest{h: sha256.New()}
}

// Write implements io.Writer. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	n, _ := d.h.Write(p)
	d.n += int64(n)
	return n, nil
}

// Sum returns the hex digest of the bytes written so far.
func (d *Digest) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Size returns the number of bytes hashed.
func (d *Digest) Size() int64 {
	return d.n
}

// Hash hashes data in one call.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
