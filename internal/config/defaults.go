package config

import (
	"os"
	"path/filepath"
)

const (
	defaultHTTPPort       = 8080
	defaultMaxUploadMB    = 10
	defaultBadgeThreshold = 0.5
)

// DefaultHTTPPort returns the port used when neither config nor env set one.
func DefaultHTTPPort() int {
	return defaultHTTPPort
}

// ProjectRoot returns the working directory, stepping out of cmd/<name> when
// the binary is started from there with go run.
func ProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		return filepath.Join(wd, "..", "..")
	}
	return wd
}

// Default returns a config that works with the models/ directory in the
// project root.
func Default() *Config {
	root := ProjectRoot()

	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:        defaultHTTPPort,
			MaxUploadMB: defaultMaxUploadMB,
			CORSOrigin:  "*",
		},
		Model: ModelConfig{
			Path:         filepath.Join(root, "models", "model.onnx"),
			MetadataPath: filepath.Join(root, "models", "metadata.json"),
			InputName:    "input",
			OutputName:   "output",
		},
		Inference: InferenceConfig{
			Interpolation:  "nearest",
			BadgeThreshold: defaultBadgeThreshold,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join("logs", "mb-classifier.log"),
		},
	}
}
