// Package doc defines the document value stored in a collection and the
// canonical encoding used for document bodies and revisions.
//
// Bodies are flat objects of string properties. They are always written in
// canonical JSON so that two replicas holding the same properties compute the
// same revision, whichever process wrote them.
//
// Canonical rules:
//   - Object keys sorted by UTF-16 code units (RFC 8785), not UTF-8 bytes
//   - Strings NFC normalized only when computing a revision
//   - No HTML escaping; U+2028/U+2029 written literally
//   - No insignificant whitespace
package doc
