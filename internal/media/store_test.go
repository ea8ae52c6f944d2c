package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "/api/v1/media/", zerolog.New(io.Discard))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSaveFetch_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	data := []byte{0xff, 0xd8, 0xff, 1, 2}

	ref, err := s.Save(ctx, KindImage, data, ".JPG")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(ref, "/api/v1/media/image/") || !strings.HasSuffix(ref, ".jpg") {
		t.Fatalf("unexpected ref %q", ref)
	}
	got, err := s.Fetch(ctx, ref)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("bytes mismatch")
	}

	other, _ := s.Save(ctx, KindImage, data, ".jpg")
	if other == ref {
		t.Fatalf("each save must get a fresh name")
	}
}

func TestSave_Rejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Save(ctx, KindAudio, []byte("x"), ".jpg"); err == nil {
		t.Fatalf("audio must be mp3")
	}
	if _, err := s.Save(ctx, KindImage, nil, ".png"); err == nil {
		t.Fatalf("empty payload must be rejected")
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Save(cctx, KindImage, []byte("x"), ".png"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetch_InvalidRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	audio, err := s.Save(ctx, KindAudio, []byte("ID3"), ".mp3")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	cases := []string{
		"",
		"file:///tmp/x.jpg",
		"/api/v1/media/image/../../etc/passwd",
		"/api/v1/media/video/0b8e7b8e-0000-4000-8000-000000000000.jpg",
		"/api/v1/media/image/not-a-uuid.jpg",
		audio,
	}
	for _, ref := range cases {
		if _, err := s.Fetch(ctx, ref); !errors.Is(err, ErrInvalidRef) {
			t.Fatalf("Fetch(%q) = %v, want ErrInvalidRef", ref, err)
		}
	}

	missing := "/api/v1/media/image/0b8e7b8e-0000-4000-8000-000000000000.jpg"
	if _, err := s.Fetch(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanup_KeepsReferencedAndFresh(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kept, _ := s.Save(ctx, KindAudio, []byte("a"), ".mp3")
	stale, _ := s.Save(ctx, KindAudio, []byte("b"), ".mp3")
	fresh, _ := s.Save(ctx, KindImage, []byte("c"), ".png")

	old := time.Now().Add(-48 * time.Hour)
	for _, ref := range []string{kept, stale} {
		k, name, err := s.Resolve(ref)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		p, _ := s.Path(k, name)
		if err := os.Chtimes(p, old, old); err != nil {
			t.Fatalf("Chtimes: %v", err)
		}
	}
	leftover := filepath.Join(s.dir, "image", ".upload-123")
	if err := os.WriteFile(leftover, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.Chtimes(leftover, old, old)

	n, err := s.Cleanup(ctx, time.Now().Add(-24*time.Hour), map[string]struct{}{kept: {}})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed = %d, want 2", n)
	}

	for ref, want := range map[string]bool{kept: true, stale: false, fresh: true} {
		k, name, _ := s.Resolve(ref)
		p, _ := s.Path(k, name)
		_, err := os.Stat(p)
		if (err == nil) != want {
			t.Fatalf("%s exists=%v want %v", ref, err == nil, want)
		}
	}
}

func TestExtForContentType(t *testing.T) {
	for ct, want := range map[string]string{
		"image/jpeg":            ".jpg",
		"IMAGE/PNG":             ".png",
		"image/webp; charset=x": ".webp",
	} {
		got, ok := ExtForContentType(ct)
		if !ok || got != want {
			t.Fatalf("%q -> %q,%v", ct, got, ok)
		}
	}
	if _, ok := ExtForContentType("application/pdf"); ok {
		t.Fatalf("pdf must be rejected")
	}
}
