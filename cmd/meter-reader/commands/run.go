package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	mimaging "github.com/ironsheep/meter-reader/internal/imaging"
	"github.com/ironsheep/meter-reader/internal/recognize"
	"github.com/ironsheep/meter-reader/internal/server"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the camera and record a reading every interval",
		Long: "Capture, normalize, recognize and store a reading every METER_INTERVAL " +
			"(default 60s). Errors are logged and the loop carries on; SIGINT or " +
			"SIGTERM stops it after the current cycle.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := newPipeline(cmd.Context()).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve meter tools over MCP (JSON-RPC on stdin/stdout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := server.New(newPipeline(cmd.Context()), build.Version)
			return srv.Run(cmd.Context())
		},
	}
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read",
		Short: "Run one cycle now and print the stored reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newPipeline(cmd.Context()).ReadOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{
				"timestamp": res.Reading.Timestamp,
				"value":     res.Reading.Value,
				"sentinel":  recognize.IsSentinel(res.Reading.Value),
				"stale":     res.Frame.Capture.Stale,
				"method":    res.Frame.Capture.Method,
			})
		},
	}
}

func captureCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture and normalize an image without recognizing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := newPipeline(cmd.Context()).CaptureNormalized(cmd.Context())
			if err != nil {
				return err
			}
			path := rt.NormalizedImagePath()
			if out != "" {
				if err := mimaging.Save(frame.Normalized, out); err != nil {
					return err
				}
				path = out
			}
			return printJSON(map[string]interface{}{
				"path":           path,
				"width":          frame.Normalized.Bounds().Dx(),
				"height":         frame.Normalized.Bounds().Dy(),
				"stale":          frame.Capture.Stale,
				"method":         frame.Capture.Method,
				"drift_distance": frame.Capture.Distance,
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the normalized image here")
	return cmd
}
