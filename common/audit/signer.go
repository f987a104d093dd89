// Package audit signs archived documents so tampering can be detected.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type DocumentSigner struct {
	secretKey []byte
}

func NewDocumentSigner(secretKey string) *DocumentSigner {
	return &DocumentSigner{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the hex HMAC-SHA256 of the entry id, direction, archive time
// and document bytes.
func (s *DocumentSigner) Sign(entryID, direction string, archivedAt time.Time, document []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	for _, part := range []string{entryID, direction, archivedAt.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(document)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *DocumentSigner) Verify(entryID, direction string, archivedAt time.Time, document []byte, signature string) bool {
	expected := s.Sign(entryID, direction, archivedAt, document)
	return hmac.Equal([]byte(expected), []byte(signature))
}
