package persona

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	clierr "github.com/kelreel/sonichash/internal/errors"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileStore reads personas from <dir>/<id>.yaml.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Get(_ context.Context, id string) (*Persona, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid persona id %q", id))
	}
	p, err := s.read(filepath.Join(s.dir, id+".yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.New(clierr.CodeNotFound, "persona not found: "+id)
		}
		return nil, clierr.Wrap(clierr.CodeInternal, "read persona "+id, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return p, nil
}

func (s *FileStore) List(_ context.Context) ([]Persona, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "list personas", err)
	}
	sort.Strings(paths)
	out := make([]Persona, 0, len(paths))
	for _, path := range paths {
		p, err := s.read(path)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "read persona "+filepath.Base(path), err)
		}
		if p.ID == "" {
			p.ID = strings.TrimSuffix(filepath.Base(path), ".yaml")
		}
		out = append(out, *p)
	}
	return out, nil
}

func (s *FileStore) read(path string) (*Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	p.Visibility = Visibility(strings.ToUpper(string(p.Visibility)))
	return &p, nil
}
