package services

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// ContentTypeEmpty is the tag used in the canonical string when a request
// carries no body; otherwise the JSON content type is used verbatim.
const (
	ContentTypeEmpty = "empty"
	ContentTypeJSON  = "application/json"
)

// PayPaySigner builds the HMAC authentication header for PayPay's Open
// Payment API. The canonical string layout and the digest concatenation
// order are fixed by the gateway; changing either breaks verification on
// the gateway side.
type PayPaySigner struct {
	APIKeyID string
	Secret   string
}

// NewPayPaySigner creates a signer for the given API credential pair.
func NewPayPaySigner(apiKeyID, secret string) *PayPaySigner {
	return &PayPaySigner{APIKeyID: apiKeyID, Secret: secret}
}

// BuildAuthHeader signs a request with a fresh nonce and the current time.
// body is nil for GET/DELETE requests.
func (s *PayPaySigner) BuildAuthHeader(method, resourcePath string, body []byte) (string, error) {
	nonce, err := generateNonce()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.buildAuthHeaderAt(method, resourcePath, body, nonce, time.Now().Unix()), nil
}

// buildAuthHeaderAt is the deterministic core: explicit nonce and epoch so
// signatures can be reproduced.
func (s *PayPaySigner) buildAuthHeaderAt(method, resourcePath string, body []byte, nonce string, epoch int64) string {
	contentType, digest := payloadDigest(body)
	signature := s.sign(resourcePath, method, nonce, epoch, contentType, digest)

	return strings.Join([]string{
		"hmac OPA-Auth:" + s.APIKeyID,
		signature,
		nonce,
		fmt.Sprintf("%d", epoch),
		digest,
	}, ":")
}

// sign computes base64(HMAC-SHA256(secret, canonical string)). The canonical
// string is newline-joined in this exact field order.
func (s *PayPaySigner) sign(resourcePath, method, nonce string, epoch int64, contentType, digest string) string {
	canonical := strings.Join([]string{
		resourcePath,
		method,
		nonce,
		fmt.Sprintf("%d", epoch),
		contentType,
		digest,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write([]byte(canonical))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// payloadDigest returns the content type tag and body digest for the
// canonical string. With no body both are the literal "empty"; with a body
// the digest is base64(MD5(contentType || body)), content type bytes
// immediately followed by body bytes with no separator.
func payloadDigest(body []byte) (contentType, digest string) {
	if len(body) == 0 {
		return ContentTypeEmpty, ContentTypeEmpty
	}

	h := md5.New()
	h.Write([]byte(ContentTypeJSON))
	h.Write(body)
	return ContentTypeJSON, base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// generateNonce returns an 8-character random token. Nonce freshness is a
// gateway-side concern, not a security control this service relies on.
func generateNonce() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = chars[int(b)%len(chars)]
	}
	return string(buf), nil
}
