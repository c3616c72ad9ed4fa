// Package main provides the gasmeter command: it photographs a dial gas
// meter on a schedule and publishes the reading.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gasmeter/internal/app"
	"gasmeter/internal/capture"
	"gasmeter/internal/config"
	"gasmeter/internal/diagnostics"
	"gasmeter/internal/dial"
	"gasmeter/internal/estimate"
	"gasmeter/internal/publish"
	"gasmeter/internal/stabilize"
	"gasmeter/internal/store"
	"gasmeter/internal/version"

	"github.com/spf13/cobra"
)

var (
	configPath string

	runDryRun    bool
	runOnce      bool
	runHotReload bool
	runReplay    []string

	historyLimit  int
	historyStatus string
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gasmeter",
		Short:        "Read an analog dial gas meter from a camera and publish it over MQTT",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "config file")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReadCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func loadConfig() (config.File, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return cfg, nil
}

func newReader(cfg config.File) (*dial.Reader, error) {
	mask, err := cfg.MaskStrategy()
	if err != nil {
		return nil, err
	}
	return dial.NewReader(dial.DefaultParams(), cfg.Dials, mask), nil
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture, estimate and publish readings on the configured schedule",
		Args:  cobra.NoArgs,
		RunE:  runRunCmd,
	}
	cmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log readings instead of publishing them")
	cmd.Flags().BoolVar(&runOnce, "once", false, "run a single cycle and exit")
	cmd.Flags().BoolVar(&runHotReload, "hot-reload", false, "re-exec between cycles when the binary changes")
	cmd.Flags().StringSliceVar(&runReplay, "replay", nil, "read frames from image files or directories instead of the camera")
	return cmd
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log.Printf("Starting %s", version.String())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, err := newReader(cfg)
	if err != nil {
		return err
	}
	stab, err := stabilize.NewStabilizer(cfg.Policy())
	if err != nil {
		return err
	}

	state := app.NewState(cfg.Stabilize.RangeFile, estimate.DefaultHistoryCapacity)
	if err := state.LoadRange(); err != nil {
		if app.IsCorruptRange(err) {
			log.Printf("[Range] ignoring unusable range file: %v", err)
		} else {
			return err
		}
	} else if state.Range == nil {
		log.Printf("[Range] no range at %s, cold start", cfg.Stabilize.RangeFile)
	} else {
		log.Printf("[Range] restored %v", *state.Range)
	}

	loop := &app.Loop{
		Frames:     cfg.Camera.Frames,
		Estimator:  estimate.NewEstimator(reader, cfg.ROI, cfg.Dials),
		Stabilizer: stab,
		State:      state,
		Period:     cfg.Schedule.Period.Duration,
	}

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("failed to open reading log: %w", err)
		}
		defer st.Close()
		loop.Log = st

		last, err := st.LastPublished(ctx)
		if err != nil {
			log.Printf("[Store] %v", err)
		} else if last != nil {
			state.Accept(last.Value)
			log.Printf("[Store] last published reading %.1f at %s", last.Value, last.TakenAt.Format("2006-01-02 15:04"))
		}
	}

	if cfg.Diagnostics.Enabled {
		dumper, err := diagnostics.New(cfg.Diagnostics.Dir, cfg.Diagnostics.ArchiveDir)
		if err != nil {
			return err
		}
		reader.Sink = dumper
		loop.Diagnostics = dumper
	}

	if len(runReplay) > 0 {
		files, err := capture.NewFiles(runReplay...)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		loop.Source = files
	} else {
		loop.Source = &capture.Camera{Device: cfg.Camera.Device, Width: cfg.Camera.Width, Height: cfg.Camera.Height}
	}

	if runDryRun {
		loop.Publisher = publish.Log{}
	} else {
		pub, err := publish.Connect(ctx, publish.MQTTOptions{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			Topic:          cfg.MQTT.Topic,
			ConnectTimeout: cfg.MQTT.ConnectTimeout.Duration,
		})
		if err != nil {
			return err
		}
		loop.Publisher = pub
	}
	defer loop.Publisher.Close()

	state.On(app.EventRangeChanged, func(data interface{}) {
		log.Printf("[Range] now %v", data)
	})

	if runOnce {
		out := loop.RunCycle(ctx)
		if out.Status != store.StatusPublished {
			return fmt.Errorf("cycle %s %s", out.CycleID, out.Status)
		}
		return nil
	}

	if runHotReload {
		loop.Reloader = app.NewHotReloader()
		if loop.Reloader == nil {
			log.Println("Hot reload: unable to determine executable path")
		} else {
			log.Printf("Hot reload: watching %s (modified %s)",
				loop.Reloader.ExecPath(), loop.Reloader.StartupTime().Format("15:04:05"))
		}
	}

	err = loop.Run(ctx)
	if errors.Is(err, app.ErrRestart) {
		loop.Publisher.Close()
		log.Println("Hot reload: restarting...")
		return loop.Reloader.Restart()
	}
	log.Println("Stopped")
	return err
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <image>...",
		Short: "Estimate one reading from image files as a single cycle",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runReadCmd,
	}
}

func runReadCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reader, err := newReader(cfg)
	if err != nil {
		return err
	}

	files, err := capture.NewFiles(args...)
	if err != nil {
		return err
	}
	frames, err := files.Capture(cmd.Context(), len(files.Paths))
	if err != nil {
		return err
	}
	defer capture.Close(frames)

	est := estimate.NewEstimator(reader, cfg.ROI, cfg.Dials)
	res, err := est.EstimateCycle(frames, estimate.NewCircleHistory(estimate.DefaultHistoryCapacity))
	if err != nil {
		return fmt.Errorf("%d frames: %w", res.TotalFrames, err)
	}

	out := cmd.OutOrStdout()
	for i, r := range res.Readings {
		fmt.Fprintf(out, "frame %d: %.2f\n", i, r)
	}
	fmt.Fprintf(out, "reading: %.1f (%d of %d frames)\n", res.Candidate, len(res.Readings), res.TotalFrames)
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cycles from the reading log",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "number of cycles to show")
	cmd.Flags().StringVar(&historyStatus, "status", "", "only show cycles with this status (published, rejected, failed, skipped)")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open reading log: %w", err)
	}
	defer st.Close()

	records, err := st.Recent(cmd.Context(), historyLimit, store.Status(historyStatus))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-20s %-10s %10s %10s %7s  %s\n", "TIME", "STATUS", "CANDIDATE", "VALUE", "FRAMES", "NOTE")
	for _, r := range records {
		fmt.Fprintf(out, "%-20s %-10s %10.2f %10.1f %3d/%-3d  %s\n",
			r.TakenAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.Candidate, r.Value,
			r.ValidFrames, r.Frames, r.Note)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Write a default config file if none exists and print its path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if _, err := os.Stat(configPath); err != nil {
				if !os.IsNotExist(err) {
					return fmt.Errorf("failed to stat config: %w", err)
				}
				if err := os.WriteFile(configPath, []byte(config.Template()), 0o644); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), configPath)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
