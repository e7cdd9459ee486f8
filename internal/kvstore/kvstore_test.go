package kvstore

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetAbsentKey(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "keys.db"))
	values, ok, err := s.Get("missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("ok should be false for an absent key")
	}
	if values != nil {
		t.Errorf("values: got %v, want nil", values)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "keys.db"))

	if err := s.Put("tracked_signals", []string{"2026-01-15_1", "2026-01-15_2"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	values, ok, err := s.Get("tracked_signals")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("key should exist")
	}
	if len(values) != 2 || values[0] != "2026-01-15_1" {
		t.Errorf("values: got %v", values)
	}
}

func TestPutReplacesValue(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "keys.db"))

	if err := s.Put("k", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("k", []string{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	values, _, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 || values[0] != "b" {
		t.Errorf("values: got %v", values)
	}
}

func TestPutNilStoresEmptyArray(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "keys.db"))
	if err := s.Put("k", nil); err != nil {
		t.Fatal(err)
	}
	values, ok, err := s.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || len(values) != 0 {
		t.Errorf("got values=%v ok=%v, want empty existing array", values, ok)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "keys.db"))
	if err := s.Put("k", []string{"a"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("k"); ok {
		t.Error("key should be gone after delete")
	}
	if err := s.Delete("k"); err != nil {
		t.Errorf("deleting an absent key should not error: %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put("disliked_articles", []string{"2026-01-15_9"}); err != nil {
		t.Fatal(err)
	}
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2 := openTestStore(t, path)
	values, ok, err := s2.Get("disliked_articles")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || len(values) != 1 || values[0] != "2026-01-15_9" {
		t.Errorf("got values=%v ok=%v after reopen", values, ok)
	}
}
