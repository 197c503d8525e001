package archiver

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStableCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stable")
	cache, err := loadStableCache(path)
	if err != nil {
		t.Fatal(err)
	}
	cache.MarkStable("Discussion:A", 10)
	cache.MarkStable("Discussion:B avec espaces", 20)
	cache.Forget("Discussion:A")
	if err := cache.Save(); err != nil {
		t.Fatal(err)
	}

	loaded, err := loadStableCache(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.IsStable("Discussion:A", 10) {
		t.Error("forgotten entry survived")
	}
	if !loaded.IsStable("Discussion:B avec espaces", 20) {
		t.Error("entry lost in round trip")
	}
	if loaded.IsStable("Discussion:B avec espaces", 21) {
		t.Error("IsStable ignores the revid")
	}
}

func TestStableCacheNoPath(t *testing.T) {
	cache, err := loadStableCache("")
	if err != nil {
		t.Fatal(err)
	}
	cache.MarkStable("T", 1)
	if err := cache.Save(); err != nil {
		t.Errorf("pathless save failed: %v", err)
	}
	if !cache.IsStable("T", 1) {
		t.Error("in-memory entry lost")
	}
}

func TestStableCacheMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stable")
	if err := os.WriteFile(path, []byte("notanumber Title\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadStableCache(path); err == nil {
		t.Error("malformed cache file accepted")
	}
}

func TestStableCacheZeroRevidNeverStable(t *testing.T) {
	cache, err := loadStableCache("")
	if err != nil {
		t.Fatal(err)
	}
	if cache.IsStable("T", 0) {
		t.Error("revid 0 reported stable")
	}
}
