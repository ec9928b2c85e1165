package sqsqueue

import (
	"strings"
	"testing"
)

func TestMessageGroupIDBucketedStable(t *testing.T) {
	a := messageGroupIDBucketed("bot-abc", defaultGroupBuckets)
	b := messageGroupIDBucketed("bot-abc", defaultGroupBuckets)
	if a != b {
		t.Errorf("same bot hashed to %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "bot-") {
		t.Errorf("group id %q missing prefix", a)
	}
}

func TestMessageGroupIDBucketedBounded(t *testing.T) {
	seen := map[string]struct{}{}
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		seen[messageGroupIDBucketed(id, 2)] = struct{}{}
	}
	if len(seen) > 2 {
		t.Errorf("2 buckets produced %d distinct groups", len(seen))
	}
}

func TestMessageGroupIDBucketedDefaultsOnBadBuckets(t *testing.T) {
	if got := messageGroupIDBucketed("x", 0); got == "" {
		t.Error("empty group id for zero buckets")
	}
	if got := messageGroupIDBucketed("x", -5); got == "" {
		t.Error("empty group id for negative buckets")
	}
}
