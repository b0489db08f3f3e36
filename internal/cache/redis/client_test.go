package redis

import "testing"

func TestKeyNamespacing(t *testing.T) {
	c := &Client{prefix: "fundingbot"}
	if got := c.Key("ratelimit", "hyperliquid"); got != "fundingbot:ratelimit:hyperliquid" {
		t.Errorf("Key = %q, want fundingbot:ratelimit:hyperliquid", got)
	}
	if got := c.Key("funding", "lighter"); got != "fundingbot:funding:lighter" {
		t.Errorf("Key = %q, want fundingbot:funding:lighter", got)
	}
}

func TestKeyPrefixDefault(t *testing.T) {
	if got := (ClientConfig{}).keyPrefix(); got != defaultKeyPrefix {
		t.Errorf("keyPrefix = %q, want %q", got, defaultKeyPrefix)
	}
	if got := (ClientConfig{KeyPrefix: "bot2"}).keyPrefix(); got != "bot2" {
		t.Errorf("keyPrefix = %q, want bot2", got)
	}
}
