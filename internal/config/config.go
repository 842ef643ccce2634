package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Consent modes for the filesystem deletion gateway.
const (
	// ConsentDirect deletes immediately; only files under protected paths need consent.
	ConsentDirect = "direct"

	// ConsentBatch asks for one consent covering every delete request.
	// Deletion happens when the consent is granted.
	ConsentBatch = "batch"
)

// Config holds application configuration.
type Config struct {
	// LibraryRoots are the directories indexed as the photo library.
	// Paths should be absolute (relative paths are ignored).
	// Empty means ~/Pictures.
	LibraryRoots []string `json:"library_roots,omitempty"`

	// Extensions lists the file extensions (with dot, lowercase) treated as photos.
	Extensions []string `json:"extensions,omitempty"`

	// ConsentMode is "direct" or "batch". See ConsentDirect and ConsentBatch.
	ConsentMode string `json:"consent_mode,omitempty"`

	// ProtectedPaths are directories whose files need per-item consent before deletion
	// in direct mode. Paths should be absolute.
	ProtectedPaths []string `json:"protected_paths,omitempty"`

	// AllowedPaths are extra directories trash manifests may be exported to
	// (in addition to ~/.tabula/exports). Paths should be absolute.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// LogLevel is one of debug, info, warn, error. TABULA_LOG_LEVEL overrides it.
	LogLevel string `json:"log_level,omitempty"`

	// WebBind and WebPort configure the review web UI listener.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes disables every MCP tool of a type ("session", "library",
	// "trash", "consent"). Applied before DisabledTools.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultExtensions are the photo extensions indexed when none are configured.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".heif", ".webp", ".tif", ".tiff", ".dng"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Extensions:  append([]string(nil), DefaultExtensions...),
		ConsentMode: ConsentDirect,
		LogLevel:    "info",
		WebBind:     "127.0.0.1",
		WebPort:     7420,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tabula.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.tabula) and library (.tabula) directories.
// The library config is found by walking upward from startDir to the nearest .tabula/config.json.
// Library config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	// Apply defaults, then global, then repo
	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .tabula/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".tabula", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// EffectiveLibraryRoots returns the absolute library roots, falling back to homeDir/Pictures.
func (c *Config) EffectiveLibraryRoots(homeDir string) []string {
	roots := make([]string, 0, len(c.LibraryRoots))
	for _, r := range c.LibraryRoots {
		if filepath.IsAbs(r) {
			roots = append(roots, filepath.Clean(r))
		}
	}
	if len(roots) == 0 && homeDir != "" {
		roots = append(roots, filepath.Join(homeDir, "Pictures"))
	}
	return roots
}

// Validate reports configuration values that cannot be used.
func (c *Config) Validate() error {
	switch c.ConsentMode {
	case ConsentDirect, ConsentBatch:
	default:
		return errors.New(`consent_mode must be "direct" or "batch"`)
	}
	if c.WebPort < 0 || c.WebPort > 65535 {
		return errors.New("web_port must be between 0 and 65535")
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.ConsentMode = firstString(overlay.ConsentMode, base.ConsentMode)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)
	result.WebBind = firstString(overlay.WebBind, base.WebBind)
	result.WebPort = firstInt(overlay.WebPort, base.WebPort)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// Arrays: merge and deduplicate
	result.LibraryRoots = mergeStringSlice(base.LibraryRoots, overlay.LibraryRoots)
	result.Extensions = mergeStringSlice(lowerAll(base.Extensions), lowerAll(overlay.Extensions))
	result.ProtectedPaths = mergeStringSlice(base.ProtectedPaths, overlay.ProtectedPaths)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return strings.TrimSpace(overlay)
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func lowerAll(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = strings.ToLower(v)
	}
	return out
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

// BaseDir returns the Tabula base directory: $TABULA_HOME if set, else ~/.tabula.
func BaseDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("TABULA_HOME")); dir != "" {
		return filepath.Clean(dir), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tabula"), nil
}
