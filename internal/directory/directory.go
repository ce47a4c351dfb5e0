package directory

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"workforce/internal/logger"
)

// Directory is the source of available employees. It may be slow or fail.
type Directory interface {
	GetAvailableEmployees(ctx context.Context) ([]Employee, error)
}

type rosterFile struct {
	Employees []Employee `yaml:"employees"`
}

const loadConcurrency = 8

func decodeRoster(name string, data []byte) ([]Employee, error) {
	var rf rosterFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", name, err)
	}
	for i := range rf.Employees {
		if err := rf.Employees[i].Validate(); err != nil {
			return nil, fmt.Errorf("roster %s: %w", name, err)
		}
	}
	return rf.Employees, nil
}

// loadFS reads every *.yaml/*.yml under root concurrently. Files are merged in
// lexical order so the roster order is stable.
func loadFS(ctx context.Context, fsys fs.FS, root string) ([]Employee, error) {
	var files []string
	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan roster dir: %w", err)
	}
	sort.Strings(files)

	parts := make([][]Employee, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := fs.ReadFile(fsys, f)
			if err != nil {
				return fmt.Errorf("read roster %s: %w", f, err)
			}
			emps, err := decodeRoster(f, data)
			if err != nil {
				return err
			}
			parts[i] = emps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Employee
	for _, p := range parts {
		all = append(all, p...)
	}
	return all, nil
}

// FileDirectory reads roster YAML files from a directory on disk.
type FileDirectory struct {
	Path string
}

func (d FileDirectory) GetAvailableEmployees(ctx context.Context) ([]Employee, error) {
	if _, err := os.Stat(d.Path); err != nil {
		return nil, fmt.Errorf("roster dir %s: %w", d.Path, err)
	}
	return loadFS(ctx, os.DirFS(d.Path), ".")
}

//go:embed roster/*.yaml
var builtinRoster embed.FS

// EmbeddedDirectory serves the roster compiled into the binary.
type EmbeddedDirectory struct{}

func (EmbeddedDirectory) GetAvailableEmployees(ctx context.Context) ([]Employee, error) {
	return loadFS(ctx, builtinRoster, "roster")
}

// Static serves a fixed roster. Used by tests and embedding callers.
type Static []Employee

func (s Static) GetAvailableEmployees(context.Context) ([]Employee, error) {
	out := make([]Employee, len(s))
	copy(out, s)
	return out, nil
}

// Cache loads a Directory once and then serves it read-only. A failed load is
// not cached, so the next call retries.
type Cache struct {
	source Directory

	mu        sync.Mutex
	loaded    bool
	employees []Employee
	byName    map[string]int
}

func NewCache(source Directory) *Cache {
	return &Cache{source: source}
}

func (c *Cache) Load(ctx context.Context) ([]Employee, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.employees, nil
	}

	emps, err := c.source.GetAvailableEmployees(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(emps))
	for i := range emps {
		if err := emps[i].Validate(); err != nil {
			return nil, err
		}
		key := strings.ToLower(emps[i].Name)
		if _, dup := byName[key]; dup {
			return nil, fmt.Errorf("%w: duplicate employee name %q", ErrInvalidEmployee, emps[i].Name)
		}
		byName[key] = i
	}

	c.employees = emps
	c.byName = byName
	c.loaded = true
	logger.Log.Info("employee directory loaded", "count", len(emps))
	return c.employees, nil
}

// Lookup finds an employee by name after Load. Names are case-insensitive.
func (c *Cache) Lookup(name string) (Employee, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return Employee{}, false
	}
	return c.employees[i], true
}
