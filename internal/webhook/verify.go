package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const signaturePrefix = "sha256="

// ValidateSignatureHeader checks that header is present and carries the
// "sha256=" prefix VerifySignature expects, before anything reads the
// (potentially large) request body to compute a MAC against it.
func ValidateSignatureHeader(header string) error {
	if header == "" {
		return fmt.Errorf("missing X-Hub-Signature-256 header")
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return fmt.Errorf("invalid signature format, expected '%s<hash>'", signaturePrefix)
	}
	return nil
}

// VerifySignature reports whether signature is the HMAC-SHA256 digest of
// payload under secret, matching GitHub's X-Hub-Signature-256 delivery
// header (spec.md §3's webhook-authenticity requirement). Grounded on the
// teacher's internal/webhook/verify.go for the digest-and-compare shape;
// the header-format check is split out into ValidateSignatureHeader so a
// malformed header is rejected before the MAC is computed at all.
func VerifySignature(payload []byte, signature, secret string) bool {
	if err := ValidateSignatureHeader(signature); err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	digest := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.TrimPrefix(signature, signaturePrefix)), []byte(digest))
}
