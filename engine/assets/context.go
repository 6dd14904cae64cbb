package assets

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// AssetContext resolves and reads files under a content root. It is created
// once at startup and passed to every loader.
type AssetContext struct {
	root string
	fsys fs.FS
}

// NewAssetContext roots the context at dir. Relative directories are
// resolved against the executable's directory first and the working
// directory second.
func NewAssetContext(dir string) (*AssetContext, error) {
	root, err := resolveRoot(dir)
	if err != nil {
		return nil, err
	}
	return &AssetContext{root: root, fsys: os.DirFS(root)}, nil
}

// NewAssetContextFS wraps an existing file system, root is only used for
// diagnostics.
func NewAssetContextFS(root string, fsys fs.FS) *AssetContext {
	return &AssetContext{root: root, fsys: fsys}
}

func resolveRoot(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return checkDir(dir)
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), dir)
		if root, err := checkDir(candidate); err == nil {
			return root, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return checkDir(filepath.Join(wd, dir))
}

func checkDir(dir string) (string, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("content directory: %w", err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("content directory %s is not a directory", dir)
	}
	return filepath.Clean(dir), nil
}

// Root is the directory (or label) the context is rooted at.
func (ac *AssetContext) Root() string {
	return ac.root
}

func (ac *AssetContext) FS() fs.FS {
	return ac.fsys
}

// ReadFile reads a slash separated path relative to the root.
func (ac *AssetContext) ReadFile(name string) ([]byte, error) {
	return fs.ReadFile(ac.fsys, name)
}

func (ac *AssetContext) Open(name string) (fs.File, error) {
	return ac.fsys.Open(name)
}

// FullPath joins name to the root for log messages.
func (ac *AssetContext) FullPath(name string) string {
	return filepath.Join(ac.root, filepath.FromSlash(name))
}

// ShaderPath is the location of a compiled shader for one bytecode format.
func ShaderPath(formatDir, filename, ext string) string {
	return path.Join("Shaders", "Compiled", formatDir, filename+ext)
}

func ImagePath(filename string) string {
	return path.Join("Images", filename)
}
