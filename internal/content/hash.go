package content

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// CIDv0 multihash prefix: sha2-256, 32 bytes.
const (
	multihashSHA256 = 0x12
	multihashLen    = 0x20
)

// HashBlob returns the CIDv0 ("Qm...") of blob, computed over the raw bytes.
func HashBlob(blob []byte) string {
	sum := sha256.Sum256(blob)
	mh := make([]byte, 0, 2+len(sum))
	mh = append(mh, multihashSHA256, multihashLen)
	mh = append(mh, sum[:]...)
	return base58.Encode(mh)
}

// ValidHash reports whether hash is a well-formed CIDv0.
func ValidHash(hash string) error {
	if len(hash) != 46 || hash[:2] != "Qm" {
		return fmt.Errorf("content hash %q: not a CIDv0", hash)
	}
	mh, err := base58.Decode(hash)
	if err != nil {
		return fmt.Errorf("content hash %q: %w", hash, err)
	}
	if len(mh) != 34 || mh[0] != multihashSHA256 || mh[1] != multihashLen {
		return fmt.Errorf("content hash %q: unexpected multihash prefix", hash)
	}
	return nil
}
