package config

import (
	"os"
	"path/filepath"

	"github.com/stormpkg/storm/pkg/repo"
)

// SandboxBackend selects the build sandbox implementation.
type SandboxBackend string

const (
	// BackendChroot builds inside namespace-isolated chroot sandboxes.
	BackendChroot SandboxBackend = "chroot"

	// BackendFirecracker reserves the Firecracker microVM backend.
	BackendFirecracker SandboxBackend = "firecracker"

	// BackendCrosVM reserves the crosvm backend.
	BackendCrosVM SandboxBackend = "crosvm"
)

// CLIConfig holds interactive command-line options.
type CLIConfig struct {
	// Prompt asks for confirmation before applying a plan.
	Prompt bool `yaml:"prompt" json:"prompt"`
}

// SandboxConfig selects and tunes the build sandbox.
type SandboxConfig struct {
	// Backend is the sandbox implementation to use. Only chroot is
	// implemented today.
	Backend SandboxBackend `yaml:"backend" json:"backend" validate:"required,oneof=chroot firecracker crosvm"`

	// BuildTimeoutSeconds bounds a single package build. Zero means
	// no limit.
	BuildTimeoutSeconds int `yaml:"build_timeout_seconds,omitempty" json:"build_timeout_seconds,omitempty" validate:"gte=0"`
}

// StoreConfig locates the package store.
type StoreConfig struct {
	// Path overrides the store location. Empty falls back to
	// $STORMPATH, then the per-user default.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// MaxParallel caps concurrent builds within a level. Zero uses
	// the built-in default.
	MaxParallel int `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty" validate:"gte=0"`
}

// PolicyConfig locates custom build policies.
type PolicyConfig struct {
	// Paths lists extra policy files or directories loaded alongside
	// the built-in policies.
	Paths []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// Config is the storm tool configuration.
type Config struct {
	CLI     CLIConfig     `yaml:"cli" json:"cli"`
	Sandbox SandboxConfig `yaml:"sandbox" json:"sandbox"`
	Store   StoreConfig   `yaml:"store" json:"store"`
	Policy  PolicyConfig  `yaml:"policy,omitempty" json:"policy,omitempty"`
	Repo    repo.Table    `yaml:"repo" json:"repo"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		CLI: CLIConfig{Prompt: true},
		Sandbox: SandboxConfig{
			Backend: BackendChroot,
		},
		Repo: *repo.NewTable(),
	}
}

// StorePath resolves the package store directory: the configured path,
// then $STORMPATH, then the per-user default.
func (c *Config) StorePath() string {
	if c != nil && c.Store.Path != "" {
		return c.Store.Path
	}
	return DefaultStorePath()
}

// DefaultStorePath returns $STORMPATH when set, /var/lib/storm for
// root, and ~/.local/share/storm otherwise.
func DefaultStorePath() string {
	if p := os.Getenv("STORMPATH"); p != "" {
		return p
	}
	if os.Geteuid() == 0 {
		return "/var/lib/storm"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".storm")
	}
	return filepath.Join(home, ".local", "share", "storm")
}

// FilePath returns the configuration file path inside the store
// directory.
func FilePath(storeDir string) string {
	return filepath.Join(storeDir, "config.yaml")
}
