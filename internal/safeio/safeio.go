package safeio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"repotutor/internal/apperr"
)

// SafeFS provides read-only helpers that resolve paths relative to a fixed root.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
// The root path is resolved to an absolute, symlink-free directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, apperr.New(apperr.KindInvalidRepository, "empty repository root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidRepository, err, "invalid repository root")
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.KindNotFound, err, "local directory %q does not exist", root)
		}
		return nil, apperr.Wrap(apperr.KindInvalidRepository, err, "invalid repository root")
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err, "local directory %q does not exist", root)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.KindInvalidRepository, "%q is not a directory", root)
	}
	return &SafeFS{absRoot: abs}, nil
}

// Root returns the absolute root directory bound to this SafeFS.
func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// SafeReadFile reads a file relative to the root.
func (s *SafeFS) SafeReadFile(userPath string) ([]byte, error) {
	p, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, notFound(userPath, err)
	}
	if info.IsDir() {
		return nil, apperr.New(apperr.KindInvalidArgument, "%q is a directory", userPath)
	}
	return os.ReadFile(p)
}

// SafeReadDir lists entries for a directory relative to the root.
func (s *SafeFS) SafeReadDir(userPath string) ([]fs.DirEntry, error) {
	dir, err := s.resolve(userPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, notFound(userPath, err)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.KindInvalidArgument, "%q is not a directory", userPath)
	}
	return os.ReadDir(dir)
}

func (s *SafeFS) resolve(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	clean := filepath.Clean(filepath.FromSlash(userPath))
	if userPath == "" || clean == "." {
		return s.absRoot, nil
	}

	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs {
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", apperr.New(apperr.KindPathEscape, "path %q escapes the repository root", userPath)
		}
	}

	var joined string
	if isAbs {
		joined = clean
	} else {
		joined = filepath.Join(s.absRoot, clean)
	}

	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", notFound(userPath, err)
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", apperr.New(apperr.KindPathEscape, "path %q resolves outside the repository root", userPath)
	}
	return resolved, nil
}

func notFound(userPath string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return apperr.Wrap(apperr.KindNotFound, err, "%q not found", userPath)
	}
	return err
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if len(root) == 0 {
		return true
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	if !strings.HasSuffix(path, sep) {
		path += sep
	}
	return strings.HasPrefix(path, root)
}
