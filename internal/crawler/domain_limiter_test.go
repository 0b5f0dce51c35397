package crawler

import (
	"context"
	"testing"
	"time"

	"inspectra/internal/config"
)

func TestDomainLimiterDisabled(t *testing.T) {
	t.Parallel()

	d := NewDomainLimiter(config.PolitenessConfig{})
	if d != nil {
		t.Fatal("expected nil limiter when politeness is off")
	}
	if err := d.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("nil limiter must not wait: %v", err)
	}
}

func TestDomainLimiterSpacesSameHost(t *testing.T) {
	t.Parallel()

	d := NewDomainLimiter(config.PolitenessConfig{PerHostDelay: config.DurationFrom(60 * time.Millisecond)})
	ctx := context.Background()

	if err := d.Wait(ctx, "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	start := time.Now()
	if err := d.Wait(ctx, "other.com"); err != nil {
		t.Fatalf("other host: %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Fatal("different hosts must not be delayed")
	}
	if err := d.Wait(ctx, "EXAMPLE.com"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected same host to be delayed, waited %s", elapsed)
	}
}

func TestDomainLimiterHonoursContext(t *testing.T) {
	t.Parallel()

	d := NewDomainLimiter(config.PolitenessConfig{PerHostDelay: config.DurationFrom(time.Minute)})
	if err := d.Wait(context.Background(), "example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Wait(ctx, "example.com"); err == nil {
		t.Fatal("expected context error")
	}
}
