package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Brownie44l1/mb-classifier-api/internal/envvar"
)

// Config holds the main configuration for the service.
type Config struct {
	Version   string          `json:"version"             yaml:"version"`
	Server    ServerConfig    `json:"server"              yaml:"server"`
	Model     ModelConfig     `json:"model"               yaml:"model"`
	Inference InferenceConfig `json:"inference"           yaml:"inference"`
	Logging   LoggingConfig   `json:"logging,omitempty"   yaml:"logging,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port        int    `json:"port"          yaml:"port"`
	MaxUploadMB int    `json:"max_upload_mb" yaml:"max_upload_mb"`
	CORSOrigin  string `json:"cors_origin"   yaml:"cors_origin"`
}

// ModelConfig locates the ONNX model and tells the runtime how to bind it.
type ModelConfig struct {
	Path              string `json:"path"                          yaml:"path"`
	MetadataPath      string `json:"metadata_path"                 yaml:"metadata_path"`
	InputName         string `json:"input_name"                    yaml:"input_name"`
	OutputName        string `json:"output_name"                   yaml:"output_name"`
	SharedLibraryPath string `json:"shared_library_path,omitempty" yaml:"shared_library_path,omitempty"`
}

// InferenceConfig tunes preprocessing and result presentation.
type InferenceConfig struct {
	Interpolation  string  `json:"interpolation"   yaml:"interpolation"`
	BadgeThreshold float64 `json:"badge_threshold" yaml:"badge_threshold"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"   yaml:"level,omitempty"`
	ToFile bool   `json:"to_file,omitempty" yaml:"to_file,omitempty"`
	File   string `json:"file,omitempty"    yaml:"file,omitempty"`
}

// MaxUploadBytes returns the multipart upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ApplyEnv overrides config values with environment variables.
// Precedence for the port: MBC_SERVER_HTTP_PORT, then PORT.
func (c *Config) ApplyEnv() {
	for _, key := range []string{envvar.Port, envvar.ServerHTTPPort} {
		if v := os.Getenv(key); v != "" {
			if port, err := strconv.Atoi(v); err == nil && port > 0 {
				c.Server.Port = port
			}
		}
	}
	if v := os.Getenv(envvar.ModelPath); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv(envvar.MetadataPath); v != "" {
		c.Model.MetadataPath = v
	}
	if v := os.Getenv(envvar.OnnxRuntimeLib); v != "" {
		c.Model.SharedLibraryPath = v
	}
}

// ResolvePaths anchors relative file paths at base. A bare shared library
// name is left alone so the dynamic loader can search for it.
func (c *Config) ResolvePaths(base string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	c.Model.Path = resolve(c.Model.Path)
	c.Model.MetadataPath = resolve(c.Model.MetadataPath)
	c.Logging.File = resolve(c.Logging.File)
	if strings.ContainsRune(c.Model.SharedLibraryPath, filepath.Separator) {
		c.Model.SharedLibraryPath = resolve(c.Model.SharedLibraryPath)
	}
}
