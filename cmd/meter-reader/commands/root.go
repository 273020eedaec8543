// Package commands implements the meter-reader command line.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ironsheep/meter-reader/internal/capture"
	"github.com/ironsheep/meter-reader/internal/config"
	"github.com/ironsheep/meter-reader/internal/ocr"
	"github.com/ironsheep/meter-reader/internal/pipeline"
	"github.com/ironsheep/meter-reader/internal/recognize"
	"github.com/ironsheep/meter-reader/internal/templates"
	"github.com/ironsheep/meter-reader/internal/vision"
)

// BuildInfo is stamped into the binary by ldflags.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

var (
	build BuildInfo
	rt    config.Runtime

	dataDir    string
	configPath string
)

// Execute runs the root command.
func Execute(info BuildInfo) error {
	build = info

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "meter-reader",
		Short:         "Read a mechanical meter counter from a camera",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt = config.FromEnv()
			if dataDir != "" {
				rt.DataDir = dataDir
				if os.Getenv("METER_CONFIG") == "" {
					rt.ConfigPath = filepath.Join(dataDir, "config.json")
				}
			}
			if configPath != "" {
				rt.ConfigPath = configPath
			}

			// stdout belongs to command output and the MCP protocol
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: rt.SlogLevel()})))
			slog.Debug("meter-reader", "version", build.Version, "built", build.BuildTime, "commit", build.GitCommit)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default $METER_DATA_DIR or ./data)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default <data-dir>/config.json)")

	root.AddCommand(runCmd(), serveCmd(), readCmd(), captureCmd(), templatesCmd(), versionCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// newPipeline wires the components for the current Runtime. The recognizer
// strategy is chosen here, once per process, and its backend is only built
// when a command first reads digits.
func newPipeline(ctx context.Context) *pipeline.Pipeline {
	lib := templates.NewLibrary(rt.ValueTemplateDir())
	camera := capture.NewOrchestrator(rt.RawImagePath(),
		capture.DefaultMethods(rt.CameraTimeout, rt.CanvasWidth, rt.CanvasHeight)...)
	recognizer := recognize.NewLazy(rt.Recognizer, func() recognize.Recognizer {
		return newRecognizer(context.WithoutCancel(ctx), lib)
	})
	return pipeline.New(rt, camera, recognizer, lib)
}

func newRecognizer(ctx context.Context, lib *templates.Library) recognize.Recognizer {
	switch rt.Recognizer {
	case config.ModeVision:
		var model recognize.VisionModel
		gemini, err := vision.NewGemini(ctx, rt.GeminiAPIKey, rt.VisionModel)
		if err != nil {
			slog.Error("vision model unavailable, readings will record ERR_NO_KEY", "error", err)
		} else {
			model = gemini
			slog.Info("recognizer", "mode", config.ModeVision, "model", gemini.Model())
		}
		return recognize.NewVision(model, rt.VisionTimeout)

	default:
		engine := ocr.NewTesseract(rt.OCRLanguage, rt.TessdataPrefix)
		info := engine.Info()
		slog.Info("recognizer", "mode", config.ModeOCR, "tesseract", info.Version, "language", info.Language)
		return recognize.NewOCR(engine, lib)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
