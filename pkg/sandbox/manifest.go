package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestEntry records one file of an artifact: its path relative to
// the output root, a content hash, and its permission bits.
type ManifestEntry struct {
	// Path is the slash-separated relative path.
	Path string `json:"path"`

	// Hash is the hex-encoded SHA-256 of the file contents. Empty for
	// directories and symlinks.
	Hash string `json:"hash,omitempty"`

	// Mode is the file mode and permission bits.
	Mode fs.FileMode `json:"mode"`

	// Link is the symlink target, for symlinks.
	Link string `json:"link,omitempty"`
}

// BuildManifest walks an output tree and returns its manifest, sorted
// by path so two identical trees always produce identical manifests.
func BuildManifest(root string) ([]ManifestEntry, error) {
	var entries []ManifestEntry

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.Contains(rel, "..") {
			return fmt.Errorf("path escapes output root: %s", rel)
		}

		entry := ManifestEntry{
			Path: rel,
			Mode: info.Mode(),
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entry.Link = target
		case info.Mode().IsRegular():
			hash, err := hashFile(path)
			if err != nil {
				return err
			}
			entry.Hash = hash
		}

		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output tree: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyTree copies an output tree from src into dst, preserving modes
// and symlinks. dst is created if missing.
func CopyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Devices and sockets have no business in an artifact.
			return fmt.Errorf("unsupported file type in output tree: %s", rel)
		}
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
