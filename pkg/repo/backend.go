package repo

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Backend syncs one repository's recipe tree into a local directory.
type Backend interface {
	// Kind returns the backend kind.
	Kind() Kind

	// Sync replicates the repository's recipe files into dest. The
	// destination is created if needed; files no longer present in
	// the source are left behind.
	Sync(ctx context.Context, dest string) error
}

// NewBackend builds the backend for a specification.
func NewBackend(name string, spec Spec) (Backend, error) {
	switch spec.Kind {
	case KindDir:
		if spec.Path == "" {
			return nil, NewInvalidSpecError(name, "dir repository requires a path")
		}
		return &dirBackend{path: spec.Path}, nil
	case KindSSH:
		return newSSHBackend(name, spec)
	case KindDummy:
		return &dummyBackend{}, nil
	default:
		return nil, NewInvalidSpecError(name, "unknown repository kind "+string(spec.Kind))
	}
}

// isRecipeFile reports whether a file name is a recipe source.
func isRecipeFile(name string) bool {
	return strings.HasSuffix(name, ".cue") || strings.HasSuffix(name, ".star")
}

// dirBackend replicates recipe files from a local directory tree.
type dirBackend struct {
	path string
}

func (b *dirBackend) Kind() Kind { return KindDir }

func (b *dirBackend) Sync(ctx context.Context, dest string) error {
	return filepath.WalkDir(b.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isRecipeFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(b.path, path)
		if err != nil {
			return err
		}
		return copyFile(path, filepath.Join(dest, rel))
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// dummyBackend holds no recipes. It exists for tests and as a
// placeholder entry in repository tables.
type dummyBackend struct{}

func (b *dummyBackend) Kind() Kind { return KindDummy }

func (b *dummyBackend) Sync(ctx context.Context, dest string) error {
	return os.MkdirAll(dest, 0o755)
}
