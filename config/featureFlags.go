package config

import (
	"os"
	"strings"
)

// AutoCreatePubSubResources controls whether topics/subscriptions are created
// on startup. Off in production, where terraform owns the topology.
//
// Set via env:
// - PUBSUB_AUTO_CREATE=true
func AutoCreatePubSubResources() bool {
	return envBool("PUBSUB_AUTO_CREATE", false)
}

// RequireWebhookSignature rejects unsigned webhooks. Only disable for local
// channel-manager simulators.
//
// Set via env:
// - WEBHOOK_SIGNATURE_REQUIRED=false
func RequireWebhookSignature() bool {
	return envBool("WEBHOOK_SIGNATURE_REQUIRED", true)
}

func envBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
