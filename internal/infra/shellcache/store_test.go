package shellcache

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"reflect"
	"testing"

	bolt "go.etcd.io/bbolt"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shell.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpenInitializesSchema(t *testing.T) {
	s, path := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		if meta == nil {
			t.Fatal("meta bucket missing")
		}
		if got := string(meta.Get([]byte(keySchemaVersion))); got != "1" {
			t.Errorf("schema version = %q, want 1", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestOpenRejectsUnknownSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shell.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatalf("bolt.Open: %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(bucketMeta))
		if err != nil {
			return err
		}
		return meta.Put([]byte(keySchemaVersion), []byte("99"))
	})
	db.Close()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := Open(path, Options{}); !errors.Is(err, errUnknownSchema) {
		t.Errorf("Open error = %v, want errUnknownSchema", err)
	}
}

func TestPutGet(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	entry := Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/css"}},
		Body:   []byte("body{}"),
	}
	if err := s.Create(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "v1", "http://app/styles/main.css?v=2", entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "v1", "http://app/styles/main.css?v=2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != 200 || string(got.Body) != "body{}" || got.Header.Get("Content-Type") != "text/css" {
		t.Errorf("unexpected entry: %+v", got)
	}
	if got.StoredAt.IsZero() {
		t.Error("StoredAt should be set")
	}

	if _, err := s.Get(ctx, "v1", "http://app/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, "v2", "http://app/styles/main.css?v=2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing version error = %v, want ErrNotFound", err)
	}
}

func TestPutAllIsAtomic(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	err := s.PutAll(ctx, "v1", map[string]Entry{
		"http://app/a": {Status: 200, Body: []byte("a")},
		"":             {Status: 200, Body: []byte("bad")},
	})
	if err == nil {
		t.Fatal("PutAll should reject an empty key")
	}

	if keys, _ := s.Keys(ctx, "v1"); len(keys) != 0 {
		t.Errorf("failed PutAll left %d entries behind", len(keys))
	}
}

func TestPutRequiresVersion(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	entry := Entry{Status: 200, Body: []byte("a")}
	if err := s.Put(ctx, "v1", "http://app/a", entry); !errors.Is(err, ErrNotFound) {
		t.Errorf("Put on missing version = %v, want ErrNotFound", err)
	}
	if ok, _ := s.Has(ctx, "v1"); ok {
		t.Error("Put must not create a version")
	}

	if err := s.Create(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "v1", "http://app/a", entry); !errors.Is(err, ErrNotFound) {
		t.Errorf("Put after Delete = %v, want ErrNotFound", err)
	}
	if versions, _ := s.Versions(ctx); len(versions) != 0 {
		t.Errorf("deleted version came back: %v", versions)
	}
}

func TestVersionsAndDelete(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for _, v := range []string{"radio-app-v6", "radio-app-v7"} {
		if err := s.Create(ctx, v); err != nil {
			t.Fatalf("Create(%s): %v", v, err)
		}
	}

	versions, err := s.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if want := []string{"radio-app-v6", "radio-app-v7"}; !reflect.DeepEqual(versions, want) {
		t.Errorf("Versions = %v, want %v", versions, want)
	}

	if err := s.Delete(ctx, "radio-app-v6"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of missing version: %v", err)
	}

	versions, _ = s.Versions(ctx)
	if want := []string{"radio-app-v7"}; !reflect.DeepEqual(versions, want) {
		t.Errorf("Versions after delete = %v, want %v", versions, want)
	}
}

func TestActiveVersion(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	v, err := s.ActiveVersion(ctx)
	if err != nil || v != "" {
		t.Fatalf("ActiveVersion = %q, %v; want empty", v, err)
	}

	if err := s.SetActiveVersion(ctx, "v1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetActiveVersion on missing version = %v, want ErrNotFound", err)
	}

	if err := s.Create(ctx, "v1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.SetActiveVersion(ctx, "v1"); err != nil {
		t.Fatalf("SetActiveVersion: %v", err)
	}
	if v, _ := s.ActiveVersion(ctx); v != "v1" {
		t.Errorf("ActiveVersion = %q, want v1", v)
	}
}

func TestKeys(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_ = s.Create(ctx, "v1")
	_ = s.PutAll(ctx, "v1", map[string]Entry{
		"http://app/b": {Status: 200},
		"http://app/a": {Status: 200},
	})

	keys, err := s.Keys(ctx, "v1")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"http://app/a", "http://app/b"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
}

func TestCancelledContext(t *testing.T) {
	s, _ := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Create(ctx, "v1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Create error = %v, want context.Canceled", err)
	}
}
