package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/leadgate/internal/adapter/ristretto"
	"github.com/Strob0t/leadgate/internal/port/cache/cachetest"
)

func TestRistretto_Compliance(t *testing.T) {
	c, err := ristretto.New(4)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	cachetest.RunComplianceTests(t, c)
}

func TestRistretto_RejectsZeroSize(t *testing.T) {
	if _, err := ristretto.New(0); err == nil {
		t.Fatal("expected error for zero size")
	}
}

func TestRistretto_TTLExpires(t *testing.T) {
	c, err := ristretto.New(1)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)
	time.Sleep(1100 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatal("expected entry to expire")
	}
}
