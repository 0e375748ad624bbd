package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// CanonicalQuery renders params as a query string with keys in a fixed sorted
// order. Signature construction and verification must canonicalize
// identically; any reordering changes the HMAC.
func CanonicalQuery(params map[string]string) string {
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
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// SignQuery computes the base64 HMAC-SHA256 of a canonical query string with
// the server-only secret. The secret must never reach a client; without it
// the signature is not computable.
func SignQuery(canonicalQuery, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("?" + canonicalQuery))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SignedWidgetURL builds a widget URL carrying a signature over its own query
// string, the scheme MoonPay and Ramp verify server-side.
func SignedWidgetURL(baseURL string, params map[string]string, secret string) string {
	query := CanonicalQuery(params)
	signature := SignQuery(query, secret)
	return baseURL + "?" + query + "&signature=" + url.QueryEscape(signature)
}
