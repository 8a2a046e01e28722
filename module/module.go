// Package module locates statistical module sources and prepares them for
// execution.
//
// Modules live under a base directory, one directory per module, with the
// source named after the module:
//
//	<base>/<name>/<name>.<ext>
//	<base>/<name>/module.toml   (optional manifest)
//
// The extension comes from the execution backend (".R" for Rscript). The
// manifest may pin a backend and declare the placeholders the source expects.
package module

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/teranos/baseline/errors"
)

// ManifestFile is the optional per-module manifest name.
const ManifestFile = "module.toml"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Manifest describes a module. Every field is optional.
type Manifest struct {
	// Engine pins the execution backend (e.g. "rscript", "wasm")
	Engine string `toml:"engine"`

	// Description is shown by `baseline list`
	Description string `toml:"description"`

	// Placeholders, when set, is the exact set of required-value keys the
	// source expects; anything missing or extra is rejected.
	Placeholders []string `toml:"placeholders"`
}

// Module is a loaded module source.
type Module struct {
	Name     string
	Path     string
	Source   string
	Manifest Manifest
}

// Loader resolves module names against a base directory.
type Loader struct {
	baseDir string
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// BaseDir returns the directory modules are resolved against.
func (l *Loader) BaseDir() string {
	return l.baseDir
}

// SourcePath returns <base>/<name>/<name>.<ext>.
func (l *Loader) SourcePath(name, ext string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(l.baseDir, name, name+"."+ext), nil
}

// Manifest reads <base>/<name>/module.toml. A missing manifest is not an
// error and yields the zero Manifest.
func (l *Loader) Manifest(name string) (Manifest, error) {
	var m Manifest
	if err := validateName(name); err != nil {
		return m, err
	}

	path := filepath.Join(l.baseDir, name, ManifestFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return m, nil
	}
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return m, errors.Wrapf(err, "decode manifest %s", path)
	}
	return m, nil
}

// Load reads the module's manifest and its source for the given extension.
func (l *Loader) Load(name, ext string) (*Module, error) {
	manifest, err := l.Manifest(name)
	if err != nil {
		return nil, err
	}

	path, err := l.SourcePath(name, ext)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithHintf(
				errors.Wrapf(errors.ErrModuleNotFound, "%s (looked for %s)", name, path),
				"create %s or set modules.dir", path)
		}
		return nil, errors.Wrapf(err, "read module %s", path)
	}

	return &Module{
		Name:     name,
		Path:     path,
		Source:   string(source),
		Manifest: manifest,
	}, nil
}

func validateName(name string) error {
	if !namePattern.MatchString(name) || strings.Contains(name, "..") {
		return errors.Wrapf(errors.ErrModuleNotFound, "invalid module name %q", name)
	}
	return nil
}
