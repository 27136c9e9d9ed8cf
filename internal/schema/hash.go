package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DomainBundle is the domain prefix for bundle handle computation.
// Version suffix enables future algorithm migration.
const DomainBundle = "pivot/bundle/v1"

// Handle computes the content-addressed handle for an implementation bundle:
// SHA-256 with domain separation over the NFC-normalized canonical form of
// (version, schema). Two manifests with the same version, fields, and
// reservation always produce the same handle, across hosts and restarts.
//
// Format of the hashed payload:
//
//	version 0x1f reserved 0x1e name ":" type 0x1e name ":" type ...
//
// Field separators (0x1e record, 0x1f unit) cannot appear in valid names,
// so the encoding is unambiguous. Strings are NFC-normalized first: two
// Unicode spellings of the same field name must not yield distinct handles.
func Handle(version string, s Schema) string {
	h := sha256.New()
	h.Write([]byte(DomainBundle))
	h.Write([]byte{0x00}) // domain separator
	h.Write([]byte(norm.NFC.String(version)))
	h.Write([]byte{0x1f})
	fmt.Fprintf(h, "%d", s.Reserved)
	for _, f := range s.Fields {
		h.Write([]byte{0x1e})
		h.Write([]byte(norm.NFC.String(f.Name)))
		h.Write([]byte{':'})
		h.Write([]byte(f.Type))
	}
	return hex.EncodeToString(h.Sum(nil))
}
