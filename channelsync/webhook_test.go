package channelsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"booking.created","booking":{"id":"BK-1"}}`)
	sig := signBody("topsecret", body)

	if !VerifySignature("topsecret", body, sig) {
		t.Fatal("valid signature rejected")
	}
	if !VerifySignature("topsecret", body, "sha256="+sig) {
		t.Fatal("sha256= prefixed signature rejected")
	}
	if VerifySignature("topsecret", body, signBody("wrongsecret", body)) {
		t.Fatal("signature with wrong secret accepted")
	}
	if VerifySignature("topsecret", []byte(`{"event":"booking.cancelled"}`), sig) {
		t.Fatal("signature over different body accepted")
	}
	if VerifySignature("topsecret", body, "") {
		t.Fatal("empty signature accepted")
	}
}

func TestWebhookProperty(t *testing.T) {
	cases := []struct {
		name     string
		payload  WebhookPayload
		query    string
		expected string
	}{
		{
			name:     "body field wins",
			payload:  WebhookPayload{PropertyId: "prop-1"},
			query:    "prop-2",
			expected: "prop-1",
		},
		{
			name:     "query fallback",
			payload:  WebhookPayload{},
			query:    "prop-2",
			expected: "prop-2",
		},
		{
			name:     "whitespace body falls through to query",
			payload:  WebhookPayload{PropertyId: "  "},
			query:    "prop-2",
			expected: "prop-2",
		},
		{
			name:     "nothing resolves to empty",
			payload:  WebhookPayload{},
			query:    "",
			expected: "",
		},
	}
	for _, tc := range cases {
		if got := webhookProperty(tc.payload, tc.query); got != tc.expected {
			t.Fatalf("%s: got %q, expected %q", tc.name, got, tc.expected)
		}
	}
}

// An unauthenticated caller must not be able to tell a malformed payload
// from a well-formed one: every response before the signature check passes is
// a 401, never a 400.
func TestWebhookHandler_MalformedBodyWithoutAuthGets401(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/integrations/:channel/webhooks", WebhookHandler())

	for _, body := range []string{
		`{"event":`,
		`not json at all`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/integrations/cultbooking/webhooks", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("body %q: got status %d, expected %d", body, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestSignatureHeader(t *testing.T) {
	cases := map[string]string{
		"cultbooking":  "X-Cultbooking-Signature",
		"some-channel": "X-Some-Channel-Signature",
	}
	for channel, expected := range cases {
		if got := SignatureHeader(channel); got != expected {
			t.Fatalf("SignatureHeader(%s) = %s, expected %s", channel, got, expected)
		}
	}
}
