// Package config implements workspace layout detection: projects, their
// module directories and the locales present in them.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/minios-linux/bundlekit/scan"
)

// Project is one project directory inside the workspace.
type Project struct {
	// Name is the project directory name.
	Name string
	// Dir is the absolute project directory.
	Dir string
	// ModuleDir is the module holding basedata, "" when none was found.
	ModuleDir string
	// Product is set for the shared product project.
	Product bool
}

// Workspace is the root directory holding the product and customer
// projects.
type Workspace struct {
	Root   string
	Config *File
}

// Open resolves root and loads its configuration.
func Open(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", scan.ErrRootNotFound, abs)
	}
	cfg, err := Load(abs)
	if err != nil {
		return nil, err
	}
	return &Workspace{Root: abs, Config: cfg}, nil
}

// Project resolves a project by name. The product's module is the
// configured product module; any other project uses the first directory
// matching the module glob.
func (w *Workspace) Project(name string) (*Project, error) {
	dir := filepath.Join(w.Root, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project %q not found in %s", name, w.Root)
	}
	p := &Project{Name: name, Dir: dir, Product: name == w.Config.Basedata.Product}
	if p.Product {
		mod := filepath.Join(dir, w.Config.Basedata.ProductModule)
		if info, err := os.Stat(mod); err == nil && info.IsDir() {
			p.ModuleDir = mod
		}
		return p, nil
	}
	p.ModuleDir = findModule(dir, w.Config.Basedata.ModuleGlob)
	return p, nil
}

// Projects lists every project directory that has a module, sorted by
// name.
func (w *Workspace) Projects() ([]*Project, error) {
	entries, err := os.ReadDir(w.Root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.Root, err)
	}
	var out []*Project
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := w.Project(e.Name())
		if err != nil || p.ModuleDir == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// findModule returns the first directory below dir matching glob.
func findModule(dir, glob string) string {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return ""
	}
	sort.Strings(matches)
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			return m
		}
	}
	return ""
}

// Languages returns the target locales: the configured list, or every
// locale found under dir except the reference.
func (w *Workspace) Languages(ctx context.Context, dir string) ([]string, error) {
	if len(w.Config.Languages) > 0 {
		return w.Config.Languages, nil
	}
	found, err := scan.Locales(ctx, dir, w.Config.ScanOptions())
	if err != nil {
		return nil, err
	}
	var langs []string
	for _, l := range found {
		if l != w.Config.Reference {
			langs = append(langs, l)
		}
	}
	return langs, nil
}
