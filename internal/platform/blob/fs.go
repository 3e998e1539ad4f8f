package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	coreerrors "github.com/safecity/dashboard/internal/core/errors"
)

const defaultFSRoot = "data/processed"

// Filesystem maps keys to files under a root directory.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root. The directory need not exist
// until the first Put.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = defaultFSRoot
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root %s: %w", root, err)
	}

	return &Filesystem{root: abs}, nil
}

func (f *Filesystem) Driver() Driver { return DriverFilesystem }

// sanitizeKey rejects keys that are empty, absolute or escape the root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key: %w", coreerrors.ErrInvalidInput)
	}

	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q: %w", key, coreerrors.ErrInvalidInput)
	}

	return filepath.ToSlash(filepath.Clean(key)), nil
}

func (f *Filesystem) pathFor(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}

	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

func (f *Filesystem) Get(_ context.Context, key string) (Info, io.ReadCloser, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return Info{}, nil, err
	}

	file, err := os.Open(path) //nolint:gosec // path is sanitized and rooted
	if err != nil {
		return Info{}, nil, f.mapErr(path, err)
	}

	st, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return Info{}, nil, fmt.Errorf("stat %s: %w", path, err)
	}

	return f.info(key, path, st), file, nil
}

func (f *Filesystem) Head(_ context.Context, key string) (Info, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return Info{}, err
	}

	st, err := os.Stat(path)
	if err != nil {
		return Info{}, f.mapErr(path, err)
	}

	return f.info(key, path, st), nil
}

// Put writes the blob, replacing any previous content.
func (f *Filesystem) Put(ctx context.Context, key string, r io.Reader, _ string) (Info, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return Info{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Info{}, fmt.Errorf("create dir for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".blob-*")
	if err != nil {
		return Info{}, fmt.Errorf("create temp for %s: %w", key, err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return Info{}, fmt.Errorf("write %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Info{}, fmt.Errorf("close %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return Info{}, fmt.Errorf("rename %s: %w", key, err)
	}

	return f.Head(ctx, key)
}

func (f *Filesystem) List(_ context.Context, prefix string) ([]Info, error) {
	var infos []Info

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipDir
			}

			return err
		}

		if d.IsDir() || strings.HasPrefix(d.Name(), ".blob-") {
			return nil
		}

		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}

		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}

		st, err := d.Info()
		if err != nil {
			return err
		}

		infos = append(infos, f.info(key, path, st))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.root, err)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })

	return infos, nil
}

func (f *Filesystem) info(key, path string, st fs.FileInfo) Info {
	return Info{
		Key:          key,
		Location:     path,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(path)),
		LastModified: st.ModTime().UTC(),
	}
}

func (f *Filesystem) mapErr(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &coreerrors.NotFoundError{Path: path}
	}

	return fmt.Errorf("open %s: %w", path, err)
}
