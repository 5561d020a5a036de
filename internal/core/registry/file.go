package registry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a static registry.
type File struct {
	Services map[string]string `yaml:"services"`
}

// LoadYAML reads a static registry document.
func LoadYAML(r io.Reader) (*MemoryRegistry, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return NewMemoryRegistry(), nil
		}
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	for name, addr := range f.Services {
		if name == "" || addr == "" {
			return nil, fmt.Errorf("%w: %q=%q", ErrInvalidAddress, name, addr)
		}
	}
	return NewStaticRegistry(f.Services), nil
}

// LoadFile reads a static registry from path.
func LoadFile(path string) (*MemoryRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return LoadYAML(f)
}
