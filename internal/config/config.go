// Package config loads and validates the optional .pax YAML file.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file.
const FileName = ".pax"

// Default values applied by the accessors.
const (
	DefaultTimeout    = time.Duration(0) // no timeout
	DefaultMaxOutput  = 1 << 20          // 1 MB
	DefaultRetryDelay = time.Second
)

// Config holds the parsed .pax configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int               `yaml:"version"`
	Shell        string            `yaml:"shell"`      // e.g. "/bin/bash"; empty uses /bin/sh
	RawTimeout   string            `yaml:"timeout"`    // e.g. "5m", "30s"
	RawMaxOutput int               `yaml:"max_output"` // bytes per captured stream
	Retry        RetryConfig       `yaml:"retry"`
	Vars         map[string]any    `yaml:"vars"` // global template scope
	Recipes      map[string]Recipe `yaml:"recipes"`
}

// RetryConfig is the default retry policy for recipe steps.
type RetryConfig struct {
	Count    int    `yaml:"count"`
	RawDelay string `yaml:"delay"` // e.g. "500ms"
}

// Recipe is a named sequence of command templates.
type Recipe struct {
	Description string `yaml:"description"`
	Parallel    bool   `yaml:"parallel"` // run steps concurrently instead of stopping at the first failure
	Steps       []Step `yaml:"steps"`
}

// Step is one command of a recipe.
type Step struct {
	Name       string            `yaml:"name"`
	Run        string            `yaml:"run"`  // command template
	Pipe       []string          `yaml:"pipe"` // templates the output of Run is piped through, in order
	Cwd        string            `yaml:"cwd"`  // relative to the config root
	Env        map[string]string `yaml:"env"`
	Stdin      string            `yaml:"stdin"`
	RawTimeout string            `yaml:"timeout"`
	NoThrow    bool              `yaml:"no_throw"` // failure does not fail the recipe
	Quiet      bool              `yaml:"quiet"`
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if d, ok := parseDuration(c.RawTimeout); ok {
		return d
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// RetryDelay returns the configured delay between retries or the default.
func (c *Config) RetryDelay() time.Duration {
	if d, ok := parseDuration(c.Retry.RawDelay); ok {
		return d
	}
	return DefaultRetryDelay
}

// RecipeNames returns the recipe names in sorted order.
func (c *Config) RecipeNames() []string {
	return slices.Sorted(maps.Keys(c.Recipes))
}

// Timeout returns the step's timeout, or fallback when none is set.
func (s *Step) Timeout(fallback time.Duration) time.Duration {
	if d, ok := parseDuration(s.RawTimeout); ok {
		return d
	}
	return fallback
}

// Label returns the step name, or a positional name for unnamed steps.
func (s *Step) Label(index int) string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("step %d", index+1)
}

// Validate reports malformed durations and recipes without runnable steps.
func (c *Config) Validate() error {
	var errs []error
	if err := checkDuration(c.RawTimeout); err != nil {
		errs = append(errs, fmt.Errorf("timeout: %w", err))
	}
	if err := checkDuration(c.Retry.RawDelay); err != nil {
		errs = append(errs, fmt.Errorf("retry.delay: %w", err))
	}
	if c.Retry.Count < 0 {
		errs = append(errs, errors.New("retry.count: must not be negative"))
	}
	for _, name := range c.RecipeNames() {
		r := c.Recipes[name]
		if len(r.Steps) == 0 {
			errs = append(errs, fmt.Errorf("recipe %q: no steps", name))
		}
		seen := make(map[string]bool)
		for i, s := range r.Steps {
			label := s.Label(i)
			if err := s.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("recipe %q, %s: %w", name, label, err))
			}
			if seen[label] {
				errs = append(errs, fmt.Errorf("recipe %q: duplicate step name %q", name, label))
			}
			seen[label] = true
		}
	}
	return errors.Join(errs...)
}

// Validate reports an empty run template or a malformed timeout.
func (s *Step) Validate() error {
	var errs []error
	if s.Run == "" {
		errs = append(errs, errors.New("run is empty"))
	}
	if err := checkDuration(s.RawTimeout); err != nil {
		errs = append(errs, fmt.Errorf("timeout: %w", err))
	}
	return errors.Join(errs...)
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .pax; falls back to workspace
}

// Load reads the .pax file found by walking upward from workspace. If no
// file exists, a default Config rooted at workspace is returned.
func Load(workspace string) (*LoadResult, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	root, found := findConfigRoot(abs)
	if !found {
		return &LoadResult{Config: &Config{}, Root: abs}, nil
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Root: root}, nil
}

// findConfigRoot walks upward from dir looking for a directory containing
// a .pax file.
func findConfigRoot(dir string) (string, bool) {
	for {
		if info, err := os.Stat(filepath.Join(dir, FileName)); err == nil && !info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func parseDuration(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func checkDuration(raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("negative duration %q", raw)
	}
	return nil
}
