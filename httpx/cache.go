package httpx

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPageNotInCache is returned by an offline CachingTransport when the
// requested response has never been stored.
var ErrPageNotInCache = errors.New("page not in cache")

// CacheMode selects how a CachingTransport uses its store.
type CacheMode int

const (
	// CacheRecord performs real requests and stores every response.
	CacheRecord CacheMode = iota
	// CacheReplay never touches the network; a miss is an error.
	CacheReplay
)

// CachingTransport wraps a Transport with an on-disk response cache
// keyed by a fingerprint of the request. It exists for offline test
// runs and for replaying expensive crawls.
type CachingTransport struct {
	inner Transport
	dir   string
	mode  CacheMode
}

// NewCachingTransport stores responses under dir.
func NewCachingTransport(inner Transport, dir string, mode CacheMode) (*CachingTransport, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &CachingTransport{inner: inner, dir: dir, mode: mode}, nil
}

// Get implements Transport.
func (t *CachingTransport) Get(ctx context.Context, url string) ([]byte, error) {
	return t.roundTrip(ctx, "GET", url, "")
}

// Post implements Transport.
func (t *CachingTransport) Post(ctx context.Context, url, body string) ([]byte, error) {
	return t.roundTrip(ctx, "POST", url, body)
}

func (t *CachingTransport) roundTrip(ctx context.Context, method, url, body string) ([]byte, error) {
	path := t.entryPath(method, url, body)
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	if t.mode == CacheReplay {
		return nil, fmt.Errorf("%s %s: %w", method, url, ErrPageNotInCache)
	}
	var data []byte
	var err error
	if method == "GET" {
		data, err = t.inner.Get(ctx, url)
	} else {
		data, err = t.inner.Post(ctx, url, body)
	}
	if err != nil {
		return nil, err
	}
	// Best effort: a failed cache write must not fail the request.
	tmp := path + ".tmp"
	if werr := os.WriteFile(tmp, data, 0o644); werr == nil {
		_ = os.Rename(tmp, path)
	}
	return data, nil
}

func (t *CachingTransport) entryPath(method, url, body string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\n%s\n%s", method, url, body)
	return filepath.Join(t.dir, hex.EncodeToString(h.Sum(nil)))
}
