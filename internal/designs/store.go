// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package designs loads and stores named Designs as YAML or JSON files.
package designs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	dlog "github.com/ManuGH/devcam/internal/log"
)

var (
	ErrNotFound    = errors.New("design not found")
	ErrInvalidName = errors.New("invalid design name")
)

var (
	namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	extensions  = []string{".yaml", ".yml", ".json"}
)

// ValidName reports whether name can be used as a file name in the store.
func ValidName(name string) bool {
	return namePattern.MatchString(name) && !strings.Contains(name, "..")
}

// Store is a directory of design files.
type Store struct {
	dir    string
	logger zerolog.Logger
}

func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir), logger: dlog.WithComponent("designs")}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Load reads the design called name. The file name decides the Design name
// when the document leaves it empty.
func (s *Store) Load(name string) (model.Design, error) {
	if !ValidName(name) {
		return model.Design{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, ext := range extensions {
		path := filepath.Join(s.dir, name+ext)
		// #nosec G304 -- name is validated against namePattern
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return model.Design{}, fmt.Errorf("read design %s: %w", name, err)
		}
		d, err := Parse(data)
		if err != nil {
			return model.Design{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if d.Name == "" {
			d.Name = name
		}
		s.logger.Debug().Str(dlog.FieldDesign, d.Name).Str(dlog.FieldPath, path).Int(dlog.FieldExposures, d.Len()).Msg("design loaded")
		return d, nil
	}
	return model.Design{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// List returns the names of all designs in the store, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !slices.Contains(extensions, ext) || !ValidName(name) {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Save writes d as <name>.yaml, atomically replacing any previous version.
func (s *Store) Save(d model.Design) error {
	if !ValidName(d.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, d.Name)
	}
	data, err := Marshal(d)
	if err != nil {
		return fmt.Errorf("encode design %s: %w", d.Name, err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create design dir: %w", err)
	}
	path := filepath.Join(s.dir, d.Name+".yaml")
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write design %s: %w", d.Name, err)
	}
	s.logger.Info().Str(dlog.FieldDesign, d.Name).Str(dlog.FieldPath, path).Msg("design saved")
	return nil
}
