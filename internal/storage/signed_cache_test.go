package storage

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"
)

// countingSigner counts sign calls and returns a distinct URL each time.
type countingSigner struct {
	signs int
}

func (s *countingSigner) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	return nil
}

func (s *countingSigner) Head(ctx context.Context, key string) (bool, error) {
	return false, nil
}

func (s *countingSigner) SignedURL(key string, ttl time.Duration) (string, error) {
	s.signs++
	return fmt.Sprintf("https://store.test/%s?n=%d", key, s.signs), nil
}

func TestCachedSigner(t *testing.T) {
	t.Run("memoizes display URLs", func(t *testing.T) {
		inner := &countingSigner{}
		c := NewCachedSigner(inner, 10*time.Minute)

		first, err := c.SignedURL("processed/web/a.jpg", DisplayURLTTL)
		if err != nil {
			t.Fatalf("SignedURL failed: %v", err)
		}
		second, err := c.SignedURL("processed/web/a.jpg", DisplayURLTTL)
		if err != nil {
			t.Fatalf("SignedURL failed: %v", err)
		}

		if first != second {
			t.Errorf("Expected cached URL, got %q then %q", first, second)
		}
		if inner.signs != 1 {
			t.Errorf("Expected one underlying sign, got %d", inner.signs)
		}
	})

	t.Run("distinct keys sign separately", func(t *testing.T) {
		inner := &countingSigner{}
		c := NewCachedSigner(inner, 10*time.Minute)

		c.SignedURL("processed/web/a.jpg", DisplayURLTTL)
		c.SignedURL("processed/web/b.jpg", DisplayURLTTL)

		if inner.signs != 2 {
			t.Errorf("Expected two underlying signs, got %d", inner.signs)
		}
	})

	t.Run("short-lived URLs bypass the cache", func(t *testing.T) {
		inner := &countingSigner{}
		c := NewCachedSigner(inner, 10*time.Minute)

		first, _ := c.SignedURL("a.jpg", DownloadURLTTL)
		second, _ := c.SignedURL("a.jpg", DownloadURLTTL)

		if first == second {
			t.Error("Expected fresh URL for each short-lived request")
		}
		if inner.signs != 2 {
			t.Errorf("Expected two underlying signs, got %d", inner.signs)
		}
	})
}
