package repo

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"repotutor/internal/safeio"
)

// LocalBackend reads a directory on disk through a root-locked SafeFS.
type LocalBackend struct {
	fs *safeio.SafeFS
}

func NewLocalBackend(root string) (*LocalBackend, error) {
	fs, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, err
	}
	return &LocalBackend{fs: fs}, nil
}

func (b *LocalBackend) Root() string { return b.fs.Root() }

func (b *LocalBackend) ListDir(_ context.Context, dir string) ([]Entry, error) {
	des, err := b.fs.SafeReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(des))
	for _, d := range des {
		rel := d.Name()
		if dir != "" {
			rel = path.Join(dir, d.Name())
		}
		// symlinks are not followed while listing
		if d.Type()&os.ModeSymlink != 0 {
			continue
		}
		e := Entry{Name: d.Name(), Path: rel, Type: EntryFile}
		if d.IsDir() {
			e.Type = EntryDir
		} else if info, err := d.Info(); err == nil {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *LocalBackend) ReadRaw(_ context.Context, file string) ([]byte, error) {
	return b.fs.SafeReadFile(file)
}

func (b *LocalBackend) Permalink(file string, startLine, endLine int) string {
	abs := filepath.ToSlash(filepath.Join(b.fs.Root(), filepath.FromSlash(file)))
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	return "file://" + abs + lineAnchor(startLine, endLine)
}

func lineAnchor(startLine, endLine int) string {
	switch {
	case startLine <= 0:
		return ""
	case endLine <= startLine:
		return fmt.Sprintf("#L%d", startLine)
	default:
		return fmt.Sprintf("#L%d-L%d", startLine, endLine)
	}
}

// localBranch reads the checked-out branch from .git/HEAD, falling back to "local".
func localBranch(root string) string {
	raw, err := os.ReadFile(filepath.Join(root, ".git", "HEAD"))
	if err != nil {
		return "local"
	}
	head := strings.TrimSpace(string(raw))
	if ref, ok := strings.CutPrefix(head, "ref: refs/heads/"); ok && ref != "" {
		return ref
	}
	if len(head) >= 7 {
		return head[:7]
	}
	return "local"
}
