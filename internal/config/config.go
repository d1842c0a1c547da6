// Package config loads the engine's process-wide configuration: workspace
// root, compiler selection and discovery paths, logging and cache
// settings, and the HTTP bind address, following the teacher's viper-backed
// load/save/validate shape.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Config is the complete engine configuration (schema version 1).
type Config struct {
	Version      int            `json:"version" mapstructure:"version"`
	WorkspaceRoot string        `json:"workspaceRoot" mapstructure:"workspaceRoot"`

	Compilers CompilersConfig `json:"compilers" mapstructure:"compilers"`
	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
}

// CompilersConfig selects and locates the compiler variants the engine can
// drive.
type CompilersConfig struct {
	Default  string `json:"default" mapstructure:"default"`
	ClangPath string `json:"clangPath" mapstructure:"clangPath"`
	MSVCPath  string `json:"msvcPath" mapstructure:"msvcPath"`
	GitPath   string `json:"gitPath" mapstructure:"gitPath"`
	DoxygenPath string `json:"doxygenPath" mapstructure:"doxygenPath"`
}

// ServerConfig carries the HTTP boundary's bind address.
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// LoggingConfig selects the logger's output format and level.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// CacheConfig locates the assembly-compare cache database.
type CacheConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// CompilerVariantSpec is one entry from an operator-supplied compilers.toml
// manifest, describing a locally available compiler variant without a code
// change.
type CompilerVariantSpec struct {
	ID    string   `toml:"id"`
	Path  string   `toml:"path"`
	Flags []string `toml:"flags"`
}

// CompilerManifest is the root of compilers.toml.
type CompilerManifest struct {
	Variants []CompilerVariantSpec `toml:"variant"`
}

// DefaultConfig returns the configuration used when no file or environment
// override is present.
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		WorkspaceRoot: ".",
		Compilers: CompilersConfig{
			Default:     "clang",
			ClangPath:   "clang++",
			MSVCPath:    "cl.exe",
			GitPath:     "git",
			DoxygenPath: "doxygen",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
		Cache: CacheConfig{
			Path: ".levelup/cache.db",
		},
	}
}

// LoadConfig loads configuration from {workspaceRoot}/levelup.yaml,
// falling back to defaults when no file exists. GIT_PATH, MSVC_PATH and
// CLANG_PATH override the executable paths in both cases. LEVELUP_-prefixed
// variables are read only when the file exists, and only for keys viper
// knows from the file or its defaults; no key replacer is set, so a nested
// key such as server.addr is looked up as LEVELUP_SERVER.ADDR.
func LoadConfig(workspaceRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("workspaceRoot", ".")
	v.SetEnvPrefix("LEVELUP")
	v.AutomaticEnv()

	v.SetConfigName("levelup")
	v.SetConfigType("yaml")
	v.AddConfigPath(workspaceRoot)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cfg := DefaultConfig()
			cfg.WorkspaceRoot = workspaceRoot
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides layers the GIT_PATH/MSVC_PATH/CLANG_PATH environment
// variables spec §6 names explicitly over whatever viper resolved, since
// those are bare (unprefixed) names rather than LEVELUP_-prefixed ones.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GIT_PATH"); v != "" {
		cfg.Compilers.GitPath = v
	}
	if v := os.Getenv("MSVC_PATH"); v != "" {
		cfg.Compilers.MSVCPath = v
	}
	if v := os.Getenv("CLANG_PATH"); v != "" {
		cfg.Compilers.ClangPath = v
	}
}

// LoadCompilerManifest reads an optional compilers.toml describing
// additional locally available compiler variants.
func LoadCompilerManifest(path string) (*CompilerManifest, error) {
	var manifest CompilerManifest
	if _, err := toml.DecodeFile(path, &manifest); err != nil {
		if os.IsNotExist(err) {
			return &CompilerManifest{}, nil
		}
		return nil, err
	}
	return &manifest, nil
}

// Save writes the configuration to {workspaceRoot}/levelup.json.
func (c *Config) Save(workspaceRoot string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(workspaceRoot, "levelup.json"), data, 0o644)
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Compilers.Default == "" {
		return &ConfigError{Field: "compilers.default", Message: "no default compiler selected"}
	}
	return nil
}

// ConfigError reports a single invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
