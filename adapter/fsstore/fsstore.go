// Package fsstore implements content storage on the local filesystem. It is
// the zero-dependency fallback adapter: always registered, lowest priority,
// only selectable when a root directory is configured.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/docuflow/docuflow/adapter"
)

// AdapterType is the registry name of this adapter.
const AdapterType = "fsstore"

func init() {
	adapter.MustRegister(adapter.FSStoreDescriptor, Build)
}

// Build creates the filesystem storage adapter rooted at props["root"]. The
// root directory is created when missing.
func Build(_ context.Context, props adapter.Properties, logger *slog.Logger) (adapter.Provider, error) {
	root := props.Get("root")
	if root == "" {
		return adapter.Provider{}, errors.New("fsstore: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return adapter.Provider{}, fmt.Errorf("fsstore: creating root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("fsstore adapter created", "root", root)

	return adapter.Provider{
		Storage: &Storage{root: root, log: logger},
	}, nil
}

// Storage stores each document as one file under the root directory, using
// the document key as a relative path.
type Storage struct {
	root string
	log  *slog.Logger
}

var _ adapter.ContentStorage = (*Storage)(nil)

// path maps a document key to a filesystem path, rejecting keys that would
// escape the root.
func (s *Storage) path(key string) (string, error) {
	if key == "" {
		return "", errors.New("fsstore: empty document key")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("fsstore: invalid document key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Storage) PutDocument(_ context.Context, doc adapter.Document) (adapter.DocumentInfo, error) {
	target, err := s.path(doc.Key)
	if err != nil {
		return adapter.DocumentInfo{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return adapter.DocumentInfo{}, fmt.Errorf("fsstore: %w", err)
	}
	if err := os.WriteFile(target, doc.Content, 0o644); err != nil {
		return adapter.DocumentInfo{}, fmt.Errorf("fsstore: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return adapter.DocumentInfo{}, fmt.Errorf("fsstore: %w", err)
	}
	return adapter.DocumentInfo{
		Key:         doc.Key,
		Size:        info.Size(),
		ContentType: contentTypeFor(doc),
		UpdatedAt:   info.ModTime().UTC(),
	}, nil
}

func (s *Storage) GetDocument(_ context.Context, key string) (adapter.Document, error) {
	target, err := s.path(key)
	if err != nil {
		return adapter.Document{}, err
	}
	content, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return adapter.Document{}, fmt.Errorf("%w: %q", adapter.ErrDocumentNotFound, key)
		}
		return adapter.Document{}, fmt.Errorf("fsstore: %w", err)
	}
	return adapter.Document{
		Key:         key,
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
		Content:     content,
	}, nil
}

func (s *Storage) DeleteDocument(_ context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", adapter.ErrDocumentNotFound, key)
		}
		return fmt.Errorf("fsstore: %w", err)
	}
	return nil
}

func (s *Storage) MoveDocument(_ context.Context, fromKey, toKey string) error {
	from, err := s.path(fromKey)
	if err != nil {
		return err
	}
	to, err := s.path(toKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("fsstore: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", adapter.ErrDocumentNotFound, fromKey)
		}
		return fmt.Errorf("fsstore: %w", err)
	}
	return nil
}

func (s *Storage) ListDocuments(_ context.Context, prefix string) ([]adapter.DocumentInfo, error) {
	var docs []adapter.DocumentInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		docs = append(docs, adapter.DocumentInfo{
			Key:         key,
			Size:        info.Size(),
			ContentType: mime.TypeByExtension(filepath.Ext(key)),
			UpdatedAt:   info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fsstore: %w", err)
	}
	return docs, nil
}

func contentTypeFor(doc adapter.Document) string {
	if doc.ContentType != "" {
		return doc.ContentType
	}
	return mime.TypeByExtension(filepath.Ext(doc.Key))
}
