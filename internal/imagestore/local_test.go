package imagestore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/config"
)

func TestLocal_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "images")
	store, err := NewLocal(dir)
	if err != nil {
		t.Fatalf("NewLocal failed: %v", err)
	}

	ref, err := store.Save(ctx, []byte("jpeg bytes"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasSuffix(ref, ".jpg") || strings.Contains(ref, "/") {
		t.Errorf("unexpected ref %q", ref)
	}

	rc, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "jpeg bytes" {
		t.Errorf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ref)); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
	if _, err := store.Open(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Errorf("deleting a missing image should succeed, got %v", err)
	}
}

func TestLocal_UniqueRefs(t *testing.T) {
	store, _ := NewLocal(t.TempDir())
	a, _ := store.Save(context.Background(), []byte("a"))
	b, _ := store.Save(context.Background(), []byte("a"))
	if a == b {
		t.Errorf("expected distinct refs, got %q twice", a)
	}
}

func TestLocal_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocal(filepath.Join(dir, "images"))
	os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o644)

	for _, ref := range []string{"../secret.txt", "", "..", "a/b.jpg", `..\secret.txt`} {
		if _, err := store.Open(context.Background(), ref); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) expected ErrNotFound, got %v", ref, err)
		}
	}
	store.Delete(context.Background(), "../secret.txt")
	if _, err := os.Stat(filepath.Join(dir, "secret.txt")); err != nil {
		t.Error("Delete must not escape the image directory")
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, &config.ImagesConfig{Store: "local", Dir: t.TempDir()}, &config.MinIOConfig{})
	if err != nil {
		t.Fatalf("New(local) failed: %v", err)
	}
	if _, ok := s.(*Local); !ok {
		t.Errorf("expected *Local, got %T", s)
	}

	if _, err := New(ctx, &config.ImagesConfig{Store: "ftp"}, &config.MinIOConfig{}); err == nil {
		t.Error("expected error for unknown store")
	}
	if _, err := New(ctx, &config.ImagesConfig{Store: "minio"}, &config.MinIOConfig{}); err == nil {
		t.Error("expected error for missing MinIO settings")
	}
	if _, err := NewLocal(""); err == nil {
		t.Error("expected error for empty directory")
	}
}
