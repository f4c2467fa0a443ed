package qstash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidSignature = errors.New("invalid qstash signature")

const signatureIssuer = "Upstash"

// Verifier checks the Upstash-Signature JWT attached to QStash deliveries.
// Keys rotate, so a signature valid under either key is accepted.
type Verifier struct {
	keys []string
	now  func() time.Time
}

type signatureClaims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
	NotBefore int64  `json:"nbf"`
	BodyHash  string `json:"body"`
}

func NewVerifier(currentKey, nextKey string) *Verifier {
	keys := make([]string, 0, 2)
	for _, k := range []string{currentKey, nextKey} {
		if trimmed := strings.TrimSpace(k); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return &Verifier{keys: keys, now: time.Now}
}

// Verify validates signature against body. When url is non-empty the token
// subject must match it.
func (v *Verifier) Verify(signature string, body []byte, url string) error {
	if v == nil || len(v.keys) == 0 {
		return fmt.Errorf("%w: no signing keys", ErrInvalidSignature)
	}

	var lastErr error
	for _, key := range v.keys {
		if err := v.verifyWithKey(key, signature, body, url); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

func (v *Verifier) verifyWithKey(key, token string, body []byte, url string) error {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed token", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := mac.Sum(nil)

	got, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrInvalidSignature, err)
	}
	if !hmac.Equal(got, want) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
	}

	rawClaims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: decode claims: %v", ErrInvalidSignature, err)
	}
	var claims signatureClaims
	if err := json.Unmarshal(rawClaims, &claims); err != nil {
		return fmt.Errorf("%w: unmarshal claims: %v", ErrInvalidSignature, err)
	}

	now := v.now().Unix()
	switch {
	case claims.Issuer != signatureIssuer:
		return fmt.Errorf("%w: issuer=%q", ErrInvalidSignature, claims.Issuer)
	case url != "" && claims.Subject != url:
		return fmt.Errorf("%w: subject=%q", ErrInvalidSignature, claims.Subject)
	case claims.ExpiresAt != 0 && now > claims.ExpiresAt:
		return fmt.Errorf("%w: token expired", ErrInvalidSignature)
	case claims.NotBefore != 0 && now < claims.NotBefore:
		return fmt.Errorf("%w: token not yet valid", ErrInvalidSignature)
	}

	sum := sha256.Sum256(body)
	bodyHash := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.BodyHash, "=") != bodyHash {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}

func decodeJSON(raw []byte, out any) error {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
