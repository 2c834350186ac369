// Command classify runs the model over image files and prints one JSON line
// per image.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Brownie44l1/mb-classifier-api/internal/advice"
	"github.com/Brownie44l1/mb-classifier-api/internal/config"
	"github.com/Brownie44l1/mb-classifier-api/internal/env"
	"github.com/Brownie44l1/mb-classifier-api/internal/logger"
	"github.com/Brownie44l1/mb-classifier-api/internal/model"
	"github.com/Brownie44l1/mb-classifier-api/internal/pipeline"
	"github.com/Brownie44l1/mb-classifier-api/internal/preprocess"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif"}

// Line is the JSON written for each input file.
type Line struct {
	RunID      string          `json:"run_id"`
	Path       string          `json:"path"`
	Class      string          `json:"class,omitempty"`
	Confidence float32         `json:"confidence,omitempty"`
	Results    []advice.Result `json:"results,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func main() {
	var (
		configPath    = flag.String("config", filepath.Join(config.ProjectRoot(), "config.yaml"), "Path to config file")
		modelPath     = flag.String("model", "", "ONNX model file (overrides config)")
		metadataPath  = flag.String("metadata", "", "Model metadata JSON (overrides config)")
		interpolation = flag.String("interpolation", "", "Resize filter: nearest, bilinear or lanczos3 (overrides config)")
		quiet         = flag.Bool("quiet", false, "Hide the progress bar")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image or dir>...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, _, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if *modelPath != "" {
		cfg.Model.Path = *modelPath
	}
	if *metadataPath != "" {
		cfg.Model.MetadataPath = *metadataPath
	}
	if *interpolation != "" {
		cfg.Inference.Interpolation = *interpolation
	}

	slog.SetDefault(logger.New(env.FromEnv(), logger.WithLevel(logger.ParseLevel(cfg.Logging.Level))))

	failed, err := run(cfg, flag.Args(), !*quiet)
	if err != nil {
		slog.Error("Classification run failed", "error", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(3)
	}
}

func run(cfg *config.Config, args []string, progress bool) (int, error) {
	files, err := collect(args)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no image files found in %v", args)
	}

	if err := model.InitRuntime(cfg.Model.SharedLibraryPath); err != nil {
		return 0, err
	}
	defer model.ShutdownRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager := model.NewManager()
	defer manager.Close()

	if err := manager.Load(ctx, model.Loader(model.ServerConfig{
		ModelPath:    cfg.Model.Path,
		MetadataPath: cfg.Model.MetadataPath,
		InputName:    cfg.Model.InputName,
		OutputName:   cfg.Model.OutputName,
	})); err != nil {
		return 0, err
	}

	runID := uuid.NewString()
	slog.Info("Classifying images", "run_id", runID, "files", len(files))

	p := pipeline.New(manager, preprocess.Interpolation(cfg.Inference.Interpolation))
	out := json.NewEncoder(os.Stdout)

	var bar *pb.ProgressBar
	if progress {
		bar = pb.StartNew(len(files))
		defer bar.Finish()
	}

	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}

		line := classifyFile(ctx, p, path, cfg.Inference.BadgeThreshold)
		line.RunID = runID
		if line.Error != "" {
			failed++
		}
		if err := out.Encode(line); err != nil {
			return failed, fmt.Errorf("failed to write result: %w", err)
		}

		if bar != nil {
			bar.Increment()
		}
	}

	slog.Info("Classification finished", "run_id", runID, "files", len(files), "failed", failed)
	return failed, nil
}

func classifyFile(ctx context.Context, p *pipeline.Pipeline, path string, threshold float64) Line {
	line := Line{Path: path}

	f, err := os.Open(path)
	if err != nil {
		line.Error = err.Error()
		return line
	}
	defer f.Close()

	result, _, err := p.Reader(ctx, f)
	if err != nil {
		line.Error = err.Error()
		return line
	}

	top := result.Top()
	line.Class = top.Class
	line.Confidence = top.Confidence
	line.Results = advice.Results(result.Results, threshold)
	return line
}

// collect expands directories into the image files beneath them. Explicit
// file arguments are kept whatever their extension.
func collect(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImage(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return lo.Uniq(files), nil
}

func isImage(path string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(path)))
}
