package doc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DomainRevision prefixes every revision hash. The version suffix allows the
// encoding to change without colliding with older revisions.
const DomainRevision = "appsync/revision/v1"

// Revision computes the content revision of a document.
//
// Format: SHA256(domain + 0x00 + canonical({"deleted":..,"id":..,"properties":..}))
// Text is NFC normalized before hashing, so canonically equivalent documents
// share a revision even when their stored bytes differ. Tombstones hash
// without properties, so every replica agrees on the revision of a deleted
// document.
func Revision(id string, props map[string]string, deleted bool) (string, error) {
	body := []byte("{}")
	if !deleted {
		var err error
		body, err = marshalCanonical(props, true)
		if err != nil {
			return "", fmt.Errorf("revision %q: %w", id, err)
		}
	}

	var idBuf bytes.Buffer
	if err := writeString(&idBuf, norm.NFC.String(id)); err != nil {
		return "", fmt.Errorf("revision %q: %w", id, err)
	}

	h := sha256.New()
	h.Write([]byte(DomainRevision))
	h.Write([]byte{0x00})
	h.Write([]byte(`{"deleted":`))
	if deleted {
		h.Write([]byte("true"))
	} else {
		h.Write([]byte("false"))
	}
	h.Write([]byte(`,"id":`))
	h.Write(idBuf.Bytes())
	h.Write([]byte(`,"properties":`))
	h.Write(body)
	h.Write([]byte("}"))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MustRevision is like Revision but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRevision(id string, props map[string]string, deleted bool) string {
	rev, err := Revision(id, props, deleted)
	if err != nil {
		panic(err)
	}
	return rev
}
