// Package config provides the simulator configuration.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"
)

// Config holds the simulator parameters.
type Config struct {
	// HighVectors places the exception vectors at 0xFFFF0000 instead of 0.
	// It is the reset value of the SCTLR V bit.
	HighVectors bool `json:"high_vectors" yaml:"high_vectors"`

	// BigEndian selects big-endian memory and instruction word order.
	BigEndian bool `json:"big_endian" yaml:"big_endian"`

	// MemorySize is the size of physical memory in bytes. 0 means the whole
	// 32-bit address space.
	MemorySize uint64 `json:"memory_size" yaml:"memory_size"`

	// DecodeCacheEntries is the number of entries of the decode cache.
	// 0 disables the cache.
	DecodeCacheEntries int `json:"decode_cache_entries" yaml:"decode_cache_entries"`

	// TLBEntries is the number of entries of the translation cache.
	TLBEntries int `json:"tlb_entries" yaml:"tlb_entries"`

	// MaxInstructions stops the simulation after this many instructions.
	// 0 means no limit.
	MaxInstructions uint64 `json:"max_instructions" yaml:"max_instructions"`

	// HaltOnUnpredictable stops the simulation at the first architecturally
	// unpredictable operand combination instead of skipping it.
	HaltOnUnpredictable bool `json:"halt_on_unpredictable" yaml:"halt_on_unpredictable"`

	// Semihosting enables host services through SWI 0x123456.
	Semihosting bool `json:"semihosting" yaml:"semihosting"`

	// LoadAddress is where raw binary images are placed.
	LoadAddress uint32 `json:"load_address" yaml:"load_address"`

	// StackPointer is the initial SVC stack pointer. 0 leaves it unset.
	StackPointer uint32 `json:"stack_pointer" yaml:"stack_pointer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		HighVectors:         false,
		BigEndian:           false,
		MemorySize:          256 * 1024 * 1024,
		DecodeCacheEntries:  4096,
		TLBEntries:          64,
		MaxInstructions:     0,
		HaltOnUnpredictable: false,
		Semihosting:         true,
		LoadAddress:         0x8000,
		StackPointer:        0x08000000,
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads a configuration file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. Fields missing from the file keep their
// default values.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return c, nil
}

// Save writes the configuration, choosing the format from the extension
// like Load.
func (c *Config) Save(fs afero.Fs, path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.DecodeCacheEntries < 0 {
		return fmt.Errorf("decode_cache_entries must be >= 0")
	}
	if c.TLBEntries <= 0 {
		return fmt.Errorf("tlb_entries must be > 0")
	}
	if c.MemorySize > 1<<32 {
		return fmt.Errorf("memory_size must not exceed 4GB")
	}
	if c.MemorySize%4096 != 0 {
		return fmt.Errorf("memory_size must be a multiple of 4096")
	}
	if c.LoadAddress%4 != 0 {
		return fmt.Errorf("load_address must be word aligned")
	}
	if c.MemorySize != 0 && uint64(c.LoadAddress) >= c.MemorySize {
		return fmt.Errorf("load_address 0x%X is outside memory", c.LoadAddress)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
