package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for digests. The version suffix allows the algorithm to
// change without colliding with stored digests.
const (
	DomainWorkPackage = "wpedit/work_package/v1"
	DomainChanges     = "wpedit/changes/v1"
)

// Digest computes SHA256(domain + 0x00 + canonical(v)) as lowercase hex.
// The null separator keeps domain and payload unambiguous.
func Digest(domain string, v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}

	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
