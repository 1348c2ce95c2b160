package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrServerNotFound is returned when a server id is not installed.
var ErrServerNotFound = errors.New("server not found")

// ServerStore persists server definitions in a YAML file.
type ServerStore struct {
	mu   sync.Mutex
	path string
}

// NewServerStore returns a store backed by path. The file is created on first save.
func NewServerStore(path string) *ServerStore {
	return &ServerStore{path: path}
}

// Path returns the backing file.
func (s *ServerStore) Path() string { return s.path }

// Load returns every stored server ordered by id. A missing file yields an empty list.
func (s *ServerStore) Load() ([]ServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *ServerStore) load() ([]ServerConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var file ServersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	sort.Slice(file.Servers, func(i, j int) bool { return file.Servers[i].ID < file.Servers[j].ID })
	return file.Servers, nil
}

// Get returns one server by id.
func (s *ServerStore) Get(id string) (ServerConfig, error) {
	servers, err := s.Load()
	if err != nil {
		return ServerConfig{}, err
	}
	for _, srv := range servers {
		if srv.ID == id {
			return srv, nil
		}
	}
	return ServerConfig{}, fmt.Errorf("%w: %s", ErrServerNotFound, id)
}

// Put validates and inserts or replaces a server definition.
func (s *ServerStore) Put(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	servers, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range servers {
		if servers[i].ID == cfg.ID {
			servers[i] = cfg
			replaced = true
		}
	}
	if !replaced {
		servers = append(servers, cfg)
	}
	return s.save(servers)
}

// Delete removes a server definition.
func (s *ServerStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	servers, err := s.load()
	if err != nil {
		return err
	}
	kept := servers[:0]
	for _, srv := range servers {
		if srv.ID != id {
			kept = append(kept, srv)
		}
	}
	if len(kept) == len(servers) {
		return fmt.Errorf("%w: %s", ErrServerNotFound, id)
	}
	return s.save(kept)
}

// save writes to a temp file in the same directory and renames it into place.
func (s *ServerStore) save(servers []ServerConfig) error {
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	data, err := yaml.Marshal(ServersFile{Servers: servers})
	if err != nil {
		return fmt.Errorf("encode servers: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".servers-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
