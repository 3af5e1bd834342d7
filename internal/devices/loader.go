package devices

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenMachineSensors/internal/types"
	"gopkg.in/yaml.v3"
)

var profileExtensions = []string{".json", ".yaml", ".yml"}

// VendorIndexFile names the optional vendor description next to profiles.
const VendorIndexFile = "index.yaml"

var ErrProfileNotFound = errors.New("profile not found")

type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(searchPaths []string) (*ProfileLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &ProfileLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load resolves profilePath (without extension) against the search paths.
// JSON and YAML profiles are accepted; both are validated against the same
// schema.
func (l *ProfileLoader) Load(profilePath string) (*types.SensorProfileDefinition, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(profilePath); ok {
		return cached.(*types.SensorProfileDefinition), nil
	}

	data, foundPath, err := l.find(profilePath)
	if err != nil {
		return nil, err
	}

	profile, err := l.Parse(data, filepath.Ext(foundPath))
	if err != nil {
		return nil, fmt.Errorf("invalid profile %s: %w", foundPath, err)
	}

	l.cache.Store(profilePath, profile)

	return profile, nil
}

// Parse validates and decodes a profile document. ext selects the syntax.
func (l *ProfileLoader) Parse(data []byte, ext string) (*types.SensorProfileDefinition, error) {
	if ext == ".yaml" || ext == ".yml" {
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
		data = converted
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, err
	}

	var profile types.SensorProfileDefinition
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	if err := l.validator.ValidateModes(&profile); err != nil {
		return nil, err
	}

	return &profile, nil
}

// Catalog lists the profile names found in all search paths.
func (l *ProfileLoader) Catalog() ([]string, error) {
	seen := make(map[string]bool)
	for _, searchPath := range l.searchPaths {
		err := filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if !isProfileExt(ext) || d.Name() == VendorIndexFile {
				return nil
			}
			rel, err := filepath.Rel(searchPath, path)
			if err != nil {
				return err
			}
			seen[filepath.ToSlash(strings.TrimSuffix(rel, ext))] = true
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to scan %s: %w", searchPath, err)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (l *ProfileLoader) SearchPaths() []string {
	return l.searchPaths
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}

func (l *ProfileLoader) find(profilePath string) ([]byte, string, error) {
	if !filepath.IsLocal(profilePath) {
		return nil, "", fmt.Errorf("%w: %s", ErrProfileNotFound, profilePath)
	}
	for _, searchPath := range l.searchPaths {
		for _, ext := range profileExtensions {
			fullPath := filepath.Join(searchPath, profilePath+ext)
			data, err := os.ReadFile(fullPath)
			if err == nil {
				return data, fullPath, nil
			}
		}
	}
	return nil, "", fmt.Errorf("%w: %s (searched in: %v)", ErrProfileNotFound, profilePath, l.searchPaths)
}

func isProfileExt(ext string) bool {
	for _, e := range profileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
