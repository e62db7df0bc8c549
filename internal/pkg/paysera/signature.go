package paysera

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// GenerateSignature computes the legacy request signature: keys sorted
// lexicographically, values URL-encoded, joined as key=value pairs with "&",
// the sign password appended with no separator, MD5 over the UTF-8 bytes,
// lowercase hex digest. The same function signs outgoing legacy payment URLs
// and verifies incoming callback parameters, so it must stay byte-exact.
func GenerateSignature(params map[string]string, signPassword string) (string, error) {
	if strings.TrimSpace(signPassword) == "" {
		return "", errors.New("sign password is not configured")
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	b.WriteString(signPassword)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// VerifySignature recomputes the legacy signature over params and compares it
// to the claimed signature in constant time.
func VerifySignature(params map[string]string, signPassword, signature string) bool {
	expected, err := GenerateSignature(params, signPassword)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// GenerateMACAuthHeader builds the Authorization header for the REST API.
// Timestamp and nonce are embedded in the signed material, so every header is
// single-use; callers get a fresh one per request and must never cache it.
func GenerateMACAuthHeader(macID, macKey, rawURL, method, body string) (string, error) {
	if strings.TrimSpace(macID) == "" || strings.TrimSpace(macKey) == "" {
		return "", errors.New("MAC id and MAC key are not configured")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return "", err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	normalized := normalizedRequest(ts, nonce, method, u, body)

	mac := hmac.New(sha256.New, []byte(macKey))
	mac.Write([]byte(normalized))
	macValue := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf(`MAC id="%s", ts="%s", nonce="%s", mac="%s"`, macID, ts, nonce, macValue), nil
}

// normalizedRequest builds the signed request string. The port slot is left
// empty and the string always ends in two newlines before any body hash; the
// provider's verifier expects this exact shape.
func normalizedRequest(ts, nonce, method string, u *url.URL, body string) string {
	path := u.Path
	if path == "" {
		path = "/"
	}

	normalized := fmt.Sprintf("%s\n%s\n%s\n%s\n%s\n%s\n\n",
		ts, nonce, strings.ToUpper(method), path, u.Hostname(), "")
	if body != "" {
		sum := sha256.Sum256([]byte(body))
		normalized += base64.StdEncoding.EncodeToString(sum[:]) + "\n"
	}
	return normalized
}

func generateNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
