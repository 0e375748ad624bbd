package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
)

func TestCanonicalQuery_DeterministicOrder(t *testing.T) {
	params := map[string]string{
		"walletAddress":      "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
		"apiKey":             "pk_test_123",
		"currencyCode":       "btc",
		"baseCurrencyAmount": "100",
	}

	first := CanonicalQuery(params)
	// Map iteration order varies; the canonical form must not
	for i := 0; i < 20; i++ {
		if got := CanonicalQuery(params); got != first {
			t.Fatalf("CanonicalQuery() iteration %d = %q, want stable %q", i, got, first)
		}
	}

	want := "apiKey=pk_test_123&baseCurrencyAmount=100&currencyCode=btc&walletAddress=bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"
	if first != want {
		t.Errorf("CanonicalQuery() = %q, want sorted %q", first, want)
	}
}

func TestCanonicalQuery_Escaping(t *testing.T) {
	got := CanonicalQuery(map[string]string{"redirect url": "https://example.com/path?a=1"})
	if strings.Contains(got, " ") || strings.Contains(got, "?a=1") {
		t.Errorf("CanonicalQuery() = %q, want escaped keys and values", got)
	}
}

func TestSignQuery(t *testing.T) {
	query := "apiKey=pk_test_123&currencyCode=btc"
	secret := "sk_test_secret"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("?" + query))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if got := SignQuery(query, secret); got != want {
		t.Errorf("SignQuery() = %q, want %q", got, want)
	}

	// A different secret yields a different signature
	if SignQuery(query, "other-secret") == want {
		t.Errorf("SignQuery() with different secret produced identical signature")
	}
}

func TestSignedWidgetURL(t *testing.T) {
	params := map[string]string{
		"apiKey":       "pk_test_123",
		"currencyCode": "btc",
	}
	signed := SignedWidgetURL("https://buy.moonpay.com", params, "sk_test_secret")

	if !strings.HasPrefix(signed, "https://buy.moonpay.com?apiKey=pk_test_123&currencyCode=btc&signature=") {
		t.Errorf("SignedWidgetURL() = %q, want canonical query followed by signature", signed)
	}

	// The signature must cover exactly the canonical query
	query := CanonicalQuery(params)
	wantSig := SignQuery(query, "sk_test_secret")
	if !strings.Contains(signed, "signature=") {
		t.Fatalf("SignedWidgetURL() missing signature parameter")
	}
	if decoded := signatureParam(t, signed); decoded != wantSig {
		t.Errorf("SignedWidgetURL() signature = %q, want %q", decoded, wantSig)
	}
}

func signatureParam(t *testing.T, signedURL string) string {
	t.Helper()
	idx := strings.LastIndex(signedURL, "signature=")
	raw := signedURL[idx+len("signature="):]
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		t.Fatalf("failed to unescape signature: %v", err)
	}
	return decoded
}
