package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"promptforge/pkg/domain"
)

func TestStateCachePutGetInvalidate(t *testing.T) {
	redis := miniredis.RunT(t)
	cache := NewStateCache(redis.Addr(), "", time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "conv-1"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, ok=%v err=%v", ok, err)
	}

	state := domain.FileState{"/src/App.js": "content", "/src/index.js": "render"}
	if err := cache.Put(ctx, "conv-1", state); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := cache.Get(ctx, "conv-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, state) {
		t.Fatalf("unexpected snapshot: %v", got)
	}

	if err := cache.Invalidate(ctx, "conv-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "conv-1"); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestStateCacheEntriesExpire(t *testing.T) {
	redis := miniredis.RunT(t)
	cache := NewStateCache(redis.Addr(), "", time.Second)
	ctx := context.Background()

	if err := cache.Put(ctx, "conv-1", domain.FileState{"/a.js": "1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	redis.FastForward(2 * time.Second)
	if _, ok, _ := cache.Get(ctx, "conv-1"); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestStateCacheTreatsCorruptEntryAsMiss(t *testing.T) {
	redis := miniredis.RunT(t)
	cache := NewStateCache(redis.Addr(), "", time.Minute)

	redis.Set("snapshot:conv-1", "{not json")
	if _, ok, err := cache.Get(context.Background(), "conv-1"); err != nil || ok {
		t.Fatalf("expected miss for corrupt entry, ok=%v err=%v", ok, err)
	}
}
