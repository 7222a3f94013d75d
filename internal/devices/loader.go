package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"gopkg.in/yaml.v3"
)

// Loader reads controller definitions from YAML files and caches them by path.
type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load reads path directly if it exists, otherwise relative to each search path.
func (l *Loader) Load(path string) (*types.ControllersFile, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(path); ok {
		return cached.(*types.ControllersFile), nil
	}

	data, foundPath, err := l.read(path)
	if err != nil {
		return nil, err
	}

	file, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", foundPath, err)
	}

	l.cache.Store(path, file)
	return file, nil
}

// Parse validates and decodes a controllers document.
func (l *Loader) Parse(data []byte) (*types.ControllersFile, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// Schema validation works on the JSON form of the document
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert YAML: %w", err)
	}
	if err := l.validator.ValidateControllers(jsonData); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	var file types.ControllersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal controllers: %w", err)
	}

	seen := make(map[string]bool, len(file.Controllers))
	for _, p := range file.Controllers {
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate controller name: %s", p.Name)
		}
		seen[p.Name] = true

		if _, err := p.TimeoutOr(0); err != nil {
			return nil, fmt.Errorf("controller %s: %w", p.Name, err)
		}
		if _, err := p.PollIntervalOr(0); err != nil {
			return nil, fmt.Errorf("controller %s: %w", p.Name, err)
		}
	}

	return &file, nil
}

func (l *Loader) read(path string) ([]byte, string, error) {
	if data, err := os.ReadFile(path); err == nil {
		return data, path, nil
	}

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, path)
		if data, err := os.ReadFile(fullPath); err == nil {
			return data, fullPath, nil
		}
	}

	return nil, "", fmt.Errorf("controllers file not found: %s (searched in: %v)", path, l.searchPaths)
}

func (l *Loader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
