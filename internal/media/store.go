// Package media stores synthesized speech and uploaded images on the local
// filesystem and resolves the references handed out for them.
//
// A reference is a URL of the form <baseURL>/<kind>/<name>, where name is a
// random UUID plus a file extension. The same reference is what the HTTP API
// serves under GET /media/:kind/:name.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Kind partitions stored files.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// ParseKind validates a kind taken from a URL.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindAudio:
		return KindAudio, true
	case KindImage:
		return KindImage, true
	}
	return "", false
}

var (
	// ErrInvalidRef is returned for references this store did not issue.
	ErrInvalidRef = errors.New("invalid media reference")
	// ErrNotFound is returned when a well-formed reference has no file.
	ErrNotFound = errors.New("media not found")
)

var nameRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(mp3|jpg|png|webp)$`)

// extensions maps accepted extensions per kind.
var extensions = map[Kind]map[string]bool{
	KindAudio: {".mp3": true},
	KindImage: {".jpg": true, ".png": true, ".webp": true},
}

// Store is a directory-backed media store. It is safe for concurrent use;
// every write goes to a fresh name.
type Store struct {
	dir     string
	baseURL string
	log     zerolog.Logger
}

// NewStore creates the kind subdirectories under dir.
func NewStore(dir, baseURL string, log zerolog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("media: dir is required")
	}
	for k := range extensions {
		if err := os.MkdirAll(filepath.Join(dir, string(k)), 0o755); err != nil {
			return nil, fmt.Errorf("media: create %s dir: %w", k, err)
		}
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "media").Logger(),
	}, nil
}

// Save writes data under a new name and returns its reference.
func (s *Store) Save(ctx context.Context, kind Kind, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext = strings.ToLower(ext)
	if !extensions[kind][ext] {
		return "", fmt.Errorf("media: unsupported %s extension %q", kind, ext)
	}
	if len(data) == 0 {
		return "", errors.New("media: empty payload")
	}

	name := uuid.NewString() + ext
	final := filepath.Join(s.dir, string(kind), name)

	tmp, err := os.CreateTemp(filepath.Join(s.dir, string(kind)), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("media: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("media: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("media: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("media: rename: %w", err)
	}

	s.log.Debug().Str("kind", string(kind)).Str("name", name).Int("bytes", len(data)).Msg("media saved")
	return s.Ref(kind, name), nil
}

// Ref builds the public reference for a stored file.
func (s *Store) Ref(kind Kind, name string) string {
	return s.baseURL + "/" + string(kind) + "/" + name
}

// Path resolves kind/name to a file path, rejecting anything that is not a
// name this store could have produced.
func (s *Store) Path(kind Kind, name string) (string, error) {
	if _, ok := extensions[kind]; !ok || !nameRE.MatchString(name) || !extensions[kind][filepath.Ext(name)] {
		return "", ErrInvalidRef
	}
	return filepath.Join(s.dir, string(kind), name), nil
}

// Resolve parses a reference into kind and name.
func (s *Store) Resolve(ref string) (Kind, string, error) {
	rest, ok := strings.CutPrefix(ref, s.baseURL+"/")
	if !ok {
		return "", "", ErrInvalidRef
	}
	k, name, ok := strings.Cut(rest, "/")
	if !ok {
		return "", "", ErrInvalidRef
	}
	kind, ok := ParseKind(k)
	if !ok {
		return "", "", ErrInvalidRef
	}
	if _, err := s.Path(kind, name); err != nil {
		return "", "", err
	}
	return kind, name, nil
}

// Fetch reads the bytes behind an image reference.
func (s *Store) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind, name, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if kind != KindImage {
		return nil, fmt.Errorf("%w: %s is not an image", ErrInvalidRef, ref)
	}
	p, _ := s.Path(kind, name)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Cleanup removes files last modified before cutoff unless their reference
// is in keep. It returns the number of files removed.
func (s *Store) Cleanup(ctx context.Context, cutoff time.Time, keep map[string]struct{}) (int, error) {
	removed := 0
	for kind := range extensions {
		entries, err := os.ReadDir(filepath.Join(s.dir, string(kind)))
		if err != nil {
			return removed, fmt.Errorf("media: read %s dir: %w", kind, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			// Leftover temp files are always stale.
			if !strings.HasPrefix(e.Name(), ".upload-") {
				if _, ok := keep[s.Ref(kind, e.Name())]; ok {
					continue
				}
			}
			if err := os.Remove(filepath.Join(s.dir, string(kind), e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn().Err(err).Str("name", e.Name()).Msg("media cleanup failed")
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// ExtForContentType maps an upload content type to a stored extension.
func ExtForContentType(ct string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}
