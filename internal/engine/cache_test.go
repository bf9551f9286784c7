package engine

import (
	"context"
	"testing"
	"time"
)

func TestCacheKeyDeterministic(t *testing.T) {
	a := CacheKey("transcript", "abc123", "en")
	b := CacheKey("transcript", "abc123", "en")
	c := CacheKey("transcript", "abc123", "ru")
	if a != b {
		t.Errorf("same parts should yield same key: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different parts should yield different keys")
	}
	if len(a) != len("gd:")+24 {
		t.Errorf("unexpected key length: %q", a)
	}
}

func TestTranscriptCachePutGet(t *testing.T) {
	c := NewTranscriptCache("", time.Minute, 10)
	ctx := context.Background()

	key := CacheKey("transcript", "vid1")
	if _, ok := c.Get(ctx, key); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(ctx, key, "hello transcript")
	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if got != "hello transcript" {
		t.Errorf("got %q", got)
	}
}

func TestTranscriptCacheExpiry(t *testing.T) {
	c := NewTranscriptCache("", time.Millisecond, 10)
	ctx := context.Background()

	c.Put(ctx, "k", "v")
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expired entry should miss")
	}
}

func TestTranscriptCacheEmptyValueIgnored(t *testing.T) {
	c := NewTranscriptCache("", time.Minute, 10)
	ctx := context.Background()

	c.Put(ctx, "k", "")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("empty values should not be cached")
	}
}

func TestTranscriptCacheNilReceiver(t *testing.T) {
	var c *TranscriptCache
	ctx := context.Background()
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("nil cache should always miss")
	}
	c.Put(ctx, "k", "v") // must not panic
}

func TestTranscriptCacheEviction(t *testing.T) {
	c := NewTranscriptCache("", time.Minute, 3)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		c.Put(ctx, k, "v-"+k)
	}

	count := 0
	c.l1.Range(func(_, _ any) bool {
		count++
		return true
	})
	if count > 3 {
		t.Errorf("cache exceeded max entries: %d > 3", count)
	}
}
