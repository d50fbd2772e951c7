// Package cachetest holds the behavioural suite every cache.Cache adapter runs.
package cachetest

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/leadgate/internal/port/cache"
)

// RunComplianceTests runs the shared suite against c. Keys are prefixed
// with the test name so adapters backed by shared servers do not collide.
func RunComplianceTests(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()
	k := func(s string) string { return "compliance:" + t.Name() + ":" + s }

	t.Run("SetAndGet", func(t *testing.T) {
		if err := c.Set(ctx, k("a"), []byte("lead-1"), time.Minute); err != nil {
			t.Fatal(err)
		}
		val, found, err := c.Get(ctx, k("a"))
		if err != nil {
			t.Fatal(err)
		}
		if !found {
			t.Fatal("expected found after Set")
		}
		if string(val) != "lead-1" {
			t.Fatalf("got %q, want lead-1", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		_, found, err := c.Get(ctx, k("missing"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, k("del"), []byte("x"), time.Minute)
		if err := c.Delete(ctx, k("del")); err != nil {
			t.Fatal(err)
		}
		_, found, err := c.Get(ctx, k("del"))
		if err != nil {
			t.Fatal(err)
		}
		if found {
			t.Fatal("expected miss after Delete")
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		if err := c.Delete(ctx, k("never")); err != nil {
			t.Fatalf("Delete of missing key: %v", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = c.Set(ctx, k("ow"), []byte("v1"), time.Minute)
		_ = c.Set(ctx, k("ow"), []byte("v2"), time.Minute)
		val, found, err := c.Get(ctx, k("ow"))
		if err != nil {
			t.Fatal(err)
		}
		if !found || string(val) != "v2" {
			t.Fatalf("got %q (found=%v), want v2", val, found)
		}
	})

	t.Run("AwkwardKey", func(t *testing.T) {
		key := k("idem:alice:POST:/api/v1/leads:abc 123")
		if err := c.Set(ctx, key, []byte("{}"), time.Minute); err != nil {
			t.Fatal(err)
		}
		if _, found, err := c.Get(ctx, key); err != nil || !found {
			t.Fatalf("found=%v err=%v", found, err)
		}
	})
}
