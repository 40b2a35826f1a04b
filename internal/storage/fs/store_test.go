package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkoziy/antigen/sequencing/internal/storage/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem {
		t.Fatalf("driver %s", s.Driver())
	}
	key := "seqruns/1/0/abc/SequencingResults_1_0_vquestairr.tsv"
	info, err := s.Put(ctx, key, bytes.NewReader([]byte("sequence_id\n")), core.PutOptions{ContentType: "text/tab-separated-values"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 12 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "seqruns", "1", "0", "abc", "SequencingResults_1_0_vquestairr.tsv")); err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if _, err := s.Put(ctx, key, bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "sequence_id\n" || got.ContentType != "text/tab-separated-values" {
		t.Fatalf("get mismatch %q %+v", b, got)
	}

	_, _ = s.Put(ctx, "seqruns/2/0/def/seqres.zip", bytes.NewReader([]byte("z")), core.PutOptions{})
	list, err := s.List(ctx, "seqruns/1/")
	if err != nil || len(list) != 1 || list[0].Key != key {
		t.Fatalf("list: %v %+v", err, list)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(all))
	}

	if _, err := s.PresignURL(ctx, key, core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if ok, err := s.Delete(ctx, key); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, _ := s.Delete(ctx, key); ok {
		t.Fatalf("second delete reported existing")
	}
	if _, err := s.Head(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "/abs", "a/b.meta"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected %q rejected", key)
		}
	}
	if k, err := sanitizeKey("a//b/./c"); err != nil || k != "a/b/c" {
		t.Fatalf("clean: %q %v", k, err)
	}
}
