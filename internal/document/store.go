// Package document stores uploaded contract documents.
package document

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Stored identifies an uploaded file.
type Stored struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// DiskStore writes documents under a root directory and serves them back
// read-only under BaseURL.
type DiskStore struct {
	root    string
	baseURL string
}

func NewDiskStore(root, baseURL string) *DiskStore {
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload copies r to <root>/<folder>/<name>. The file is written to a
// temporary name first so readers never see a partial document.
func (s *DiskStore) Upload(ctx context.Context, folder, name string, r io.Reader) (Stored, error) {
	key, err := cleanKey(folder, name)
	if err != nil {
		return Stored{}, err
	}
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Stored{}, fmt.Errorf("create document folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Stored{}, fmt.Errorf("create document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return Stored{}, fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Stored{}, fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Stored{}, fmt.Errorf("store document: %w", err)
	}

	return Stored{Key: key, URL: s.baseURL + "/" + key}, nil
}

// Handler serves stored documents. Mount it with http.StripPrefix.
func (s *DiskStore) Handler() http.Handler {
	return http.FileServer(noListing{http.Dir(s.root)})
}

func cleanKey(folder, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid document name %q", name)
	}
	key := path.Clean(path.Join(folder, name))
	if strings.HasPrefix(key, "../") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid document folder %q", folder)
	}
	return key, nil
}

// noListing hides directory indexes.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
