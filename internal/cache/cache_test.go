package cache

import (
	"testing"
)

func TestFingerprintDeterministic(t *testing.T) {
	key := Key{Identity: "user-1", Content: "Hello world.", Voice: "yue-HK-Standard-A", Rate: 1.0}

	if key.Fingerprint() != key.Fingerprint() {
		t.Error("fingerprint not deterministic")
	}
	if len(key.Fingerprint()) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(key.Fingerprint()))
	}
}

func TestFingerprintSensitiveToEveryComponent(t *testing.T) {
	base := Key{Identity: "user-1", Content: "Hello world.", Voice: "yue-HK-Standard-A", Rate: 1.0}

	variants := []Key{
		{Identity: "user-2", Content: base.Content, Voice: base.Voice, Rate: base.Rate},
		{Identity: base.Identity, Content: "Hello world!", Voice: base.Voice, Rate: base.Rate},
		{Identity: base.Identity, Content: base.Content, Voice: "en-US-Neural2-C", Rate: base.Rate},
		{Identity: base.Identity, Content: base.Content, Voice: base.Voice, Rate: 1.25},
	}

	for i, v := range variants {
		if v.Fingerprint() == base.Fingerprint() {
			t.Errorf("variant %d should change the fingerprint", i)
		}
	}
}

func TestFingerprintComponentsDoNotBleed(t *testing.T) {
	// Without separators "ab"+"c" and "a"+"bc" would collide.
	a := Key{Identity: "ab", Content: "x", Voice: "c", Rate: 1.0}
	b := Key{Identity: "a", Content: "x", Voice: "bc", Rate: 1.0}

	if a.Fingerprint() == b.Fingerprint() {
		t.Error("adjacent components collide without separators")
	}
}

func TestNewWithoutRedisStillWorks(t *testing.T) {
	c, err := New("", nil, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if c.redis != nil {
		t.Error("empty URL should not create a redis client")
	}
}
