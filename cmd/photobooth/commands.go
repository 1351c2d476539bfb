package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/cjeanneret/photobooth"
	"github.com/cjeanneret/photobooth/internal/config"
	"github.com/cjeanneret/photobooth/internal/debug"
	"github.com/cjeanneret/photobooth/internal/logic/imaging"
)

// overrides are command-line values applied over the loaded config.
// Zero values mean "use config".
type overrides struct {
	filter       string
	timerSeconds int
	noTimer      bool
	quality      int
	debugLevel   int // -1 = use config
}

// validateOverrides checks that non-zero overrides are within valid ranges.
func validateOverrides(o overrides) error {
	if o.filter != "" {
		if _, err := imaging.ParseKind(o.filter); err != nil {
			return fmt.Errorf("--filter: %w", err)
		}
	}
	if o.timerSeconds < 0 || o.timerSeconds > 10 {
		return fmt.Errorf("--timer must be between 1 and 10, got %d", o.timerSeconds)
	}
	if o.quality < 0 || o.quality > 100 {
		return fmt.Errorf("--quality must be between 1 and 100, got %d", o.quality)
	}
	if o.debugLevel < -1 || o.debugLevel > 4 {
		return fmt.Errorf("--debug must be between 0 and 4, got %d", o.debugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with the non-zero overrides.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.filter != "" {
		cfg.Capture.Filter = o.filter
	}
	if o.timerSeconds > 0 {
		cfg.Capture.TimerSeconds = o.timerSeconds
	}
	if o.noTimer {
		cfg.Capture.TimerEnabled = false
	}
	if o.quality > 0 {
		cfg.Export.Quality = o.quality
	}
	if o.debugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.debugLevel
	}
}

// loadConfig reads path, or the environment alone when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath     string
		dumpMetrics bool
		o           = overrides{debugLevel: -1}
	)

	cmd := &cobra.Command{
		Use:   "photobooth",
		Short: "Headless photo booth: camera, filters, countdown, strips",
		Long: `photobooth drives a camera session without a screen.

Captures are triggered by GPIO buttons ("run") or once from the command
line ("capture"). Photos live in memory for the session; "capture" writes
the JPEG it took to stdout or to --out.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries JPEG bytes and event lines; logs go to stderr.
			debug.SetOutput(cmd.ErrOrStderr())
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			return validateOverrides(o)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !dumpMetrics {
				return nil
			}
			return writeMetrics(cmd.ErrOrStderr(), prometheus.DefaultGatherer)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to configs/<name>.yaml (environment only when empty)")
	cmd.PersistentFlags().StringVarP(&o.filter, "filter", "f", "", "filter override")
	cmd.PersistentFlags().IntVar(&o.timerSeconds, "timer", 0, "countdown length override in seconds (1-10)")
	cmd.PersistentFlags().BoolVar(&o.noTimer, "no-timer", false, "capture without countdown")
	cmd.PersistentFlags().IntVarP(&o.quality, "quality", "q", 0, "JPEG quality override (1-100)")
	cmd.PersistentFlags().IntVarP(&o.debugLevel, "debug", "d", -1, "debug level override (0-4)")
	cmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "print photobooth metrics to stderr on exit")

	open := func(opts ...photobooth.Option) (*photobooth.Session, error) {
		cfg, err := loadConfig(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		applyOverrides(cfg, o)
		return photobooth.New(cfg, opts...)
	}

	cmd.AddCommand(newRunCmd(open))
	cmd.AddCommand(newCaptureCmd(open))
	cmd.AddCommand(newFiltersCmd())
	return cmd
}

type openFunc func(opts ...photobooth.Option) (*photobooth.Session, error)

func newRunCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the booth until interrupted, printing events as JSON lines",
		Example: `  # Buttons on the default pins, mock GPIO off
  PHOTOBOOTH_DEFAULTS_MOCK_GPIO=false PHOTOBOOTH_CONTROLS_ENABLED=true photobooth run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			events, unsub := s.Events().Subscribe()
			defer unsub()

			if err := s.Start(); err != nil {
				return errors.Join(err, s.Close())
			}

			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return s.Close()
				case msg := <-events:
					if _, err := fmt.Fprintln(out, msg); err != nil {
						return errors.Join(err, s.Close())
					}
				}
			}
		},
	}
}

func newCaptureCmd(open openFunc) *cobra.Command {
	var (
		strip   bool
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take one photo or strip and write the JPEG",
		Example: `  photobooth capture --no-timer -f sepia > photo.jpg
  photobooth capture --strip -o strip.jpg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			a, f, err := captureOne(cmd.Context(), s, strip)
			if err := errors.Join(err, s.Close()); err != nil {
				return err
			}

			if err := writeOutput(cmd.OutOrStdout(), outPath, f.Data); err != nil {
				return fmt.Errorf("write %s: %w", f.Name, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s (%s, %d bytes)\n", f.Name, a, len(f.Data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&strip, "strip", false, "capture a four-frame strip")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, - for stdout")
	return cmd
}

// captureOne starts s and takes a single photo or a strip.
func captureOne(ctx context.Context, s *photobooth.Session, strip bool) (*photobooth.Artifact, photobooth.File, error) {
	if err := s.Start(); err != nil {
		return nil, photobooth.File{}, err
	}

	var (
		a   *photobooth.Artifact
		err error
	)
	if strip {
		a, err = s.CaptureStrip(ctx)
	} else {
		a, err = s.Capture(ctx)
	}
	if err != nil {
		return nil, photobooth.File{}, err
	}
	f, err := s.Gallery().Download(a.ID)
	if err != nil {
		return nil, photobooth.File{}, err
	}
	return a, f, nil
}

// writeOutput writes data to stdout for "" or "-", to a new file otherwise.
// The file is closed before returning so a failed flush is reported.
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func newFiltersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List filter names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, k := range photobooth.Filters() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

// writeMetrics prints the photobooth_* families in text exposition format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "photobooth_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
