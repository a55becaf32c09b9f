// Package project manages Tracey projects on disk: a directory per project holding a YAML
// manifest (<root>/<name>/<name>.ptrx) next to the scene graph the engine edits in memory.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/tracey"
	"github.com/Carmen-Shannon/tracey/engine/scene"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const (
	// Extension is the manifest file extension.
	Extension = ".ptrx"
	// ManifestVersion is written into every manifest.
	ManifestVersion = 1
	// UntitledName names the scratch project returned by Tmp.
	UntitledName = "Untitled Project"
	// DefaultRootPath is the unexpanded default project root.
	DefaultRootPath = "~/Documents/Tracey Projects"
)

// ErrInvalidName is returned for project names that cannot be used as a single directory name.
var ErrInvalidName = errors.New("invalid project name")

// Manifest is the on-disk record of a project.
type Manifest struct {
	Version int       `yaml:"version"`
	Name    string    `yaml:"name"`
	Created time.Time `yaml:"created"`
	// Assets are the image files imported into the project, in import order.
	Assets []string `yaml:"assets,omitempty"`
	// Scene is the glTF file last loaded into the project graph.
	Scene string `yaml:"scene,omitempty"`
}

// Project is a named project directory and its in-memory scene graph.
// Not safe for concurrent use; the model actor owns it.
type Project interface {
	// Name returns the project name.
	Name() string

	// Dir returns the project directory.
	Dir() string

	// Path returns the manifest path.
	Path() string

	// Manifest returns a copy of the current manifest.
	Manifest() Manifest

	// Graph returns the project's scene graph.
	Graph() scene.Graph

	// SetGraph replaces the scene graph and records where it was loaded from.
	//
	// Parameters:
	//   - g: the new graph
	//   - scenePath: the file g was loaded from
	//
	// Returns:
	//   - error: error if the manifest cannot be saved
	SetGraph(g scene.Graph, scenePath string) error

	// AddAsset records an imported file. Duplicate paths are recorded once.
	//
	// Parameters:
	//   - path: the imported file
	//
	// Returns:
	//   - error: error if the manifest cannot be saved
	AddAsset(path string) error

	// Save writes the manifest.
	//
	// Returns:
	//   - error: error if the manifest cannot be encoded or written
	Save() error
}

var _ Project = &projectImpl{}

type projectImpl struct {
	dir      string
	manifest Manifest
	graph    scene.Graph
	now      func() time.Time
}

// DefaultRoot expands DefaultRootPath against the user's home directory.
//
// Returns:
//   - string: the absolute default root
//   - error: error if the home directory cannot be determined
func DefaultRoot() (string, error) {
	return ExpandRoot(DefaultRootPath)
}

// ExpandRoot expands a leading ~ in root.
func ExpandRoot(root string) (string, error) {
	p, err := homedir.Expand(root)
	if err != nil {
		return "", fmt.Errorf("expand project root %q: %w", root, err)
	}
	return p, nil
}

// ValidateName reports whether name can be used as a project directory name.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// Create makes <root>/<name>/ and writes a fresh manifest into it. An existing directory is
// reused and its manifest overwritten.
//
// Parameters:
//   - root: the project root directory, a leading ~ is expanded
//   - name: the project name
//   - options: functional options
//
// Returns:
//   - Project: the new project with an empty scene graph
//   - error: error if the name is invalid or the directory cannot be written
func Create(root, name string, options ...ProjectBuilderOption) (Project, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	root, err := ExpandRoot(root)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create project dir: %w", err)
	}
	p := newProject(dir, name, options...)
	if err := p.Save(); err != nil {
		return nil, err
	}
	tracey.Logger().Info("project created", "name", name, "dir", dir)
	return p, nil
}

// Tmp returns the scratch project in os.TempDir()/Tracey/Untitled Project. Whatever the
// directory held before is removed.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - Project: the scratch project
//   - error: error if the directory cannot be reset
func Tmp(options ...ProjectBuilderOption) (Project, error) {
	root := filepath.Join(os.TempDir(), "Tracey")
	if err := os.RemoveAll(filepath.Join(root, UntitledName)); err != nil {
		return nil, fmt.Errorf("reset scratch project: %w", err)
	}
	return Create(root, UntitledName, options...)
}

// Open reads the manifest at path. The scene graph starts empty; callers reload
// Manifest().Scene when they need it.
//
// Parameters:
//   - path: a .ptrx manifest
//   - options: functional options
//
// Returns:
//   - Project: the opened project
//   - error: error if the manifest cannot be read or decoded
func Open(path string, options ...ProjectBuilderOption) (Project, error) {
	if filepath.Ext(path) != Extension {
		return nil, fmt.Errorf("open project %s: not a %s file", path, Extension)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if err := ValidateName(m.Name); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	p := newProject(filepath.Dir(path), m.Name, options...)
	p.manifest = m
	return p, nil
}

func newProject(dir, name string, options ...ProjectBuilderOption) *projectImpl {
	p := &projectImpl{
		dir: dir,
		now: time.Now,
	}
	for _, opt := range options {
		opt(p)
	}
	p.manifest = Manifest{
		Version: ManifestVersion,
		Name:    name,
		Created: p.now().UTC().Truncate(time.Second),
	}
	p.graph = scene.New(name)
	return p
}

func (p *projectImpl) Name() string {
	return p.manifest.Name
}

func (p *projectImpl) Dir() string {
	return p.dir
}

func (p *projectImpl) Path() string {
	return filepath.Join(p.dir, p.manifest.Name+Extension)
}

func (p *projectImpl) Manifest() Manifest {
	m := p.manifest
	m.Assets = append([]string(nil), m.Assets...)
	return m
}

func (p *projectImpl) Graph() scene.Graph {
	return p.graph
}

func (p *projectImpl) SetGraph(g scene.Graph, scenePath string) error {
	if g == nil {
		panic("project: nil graph")
	}
	p.graph = g
	p.manifest.Scene = scenePath
	return p.Save()
}

func (p *projectImpl) AddAsset(path string) error {
	for _, a := range p.manifest.Assets {
		if a == path {
			return nil
		}
	}
	p.manifest.Assets = append(p.manifest.Assets, path)
	return p.Save()
}

func (p *projectImpl) Save() error {
	data, err := yaml.Marshal(&p.manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := p.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, p.Path()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
