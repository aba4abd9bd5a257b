// Package main is the CLI entry point for navpilot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/navpilot/internal/config"
	"github.com/eliteGoblin/navpilot/internal/daemon"
	"github.com/eliteGoblin/navpilot/internal/domain"
	"github.com/eliteGoblin/navpilot/internal/hook"
	"github.com/eliteGoblin/navpilot/internal/infra"
	"github.com/eliteGoblin/navpilot/internal/keys"
	"github.com/eliteGoblin/navpilot/internal/motion"
	"github.com/eliteGoblin/navpilot/internal/pause"
	"github.com/eliteGoblin/navpilot/internal/state"
	"github.com/eliteGoblin/navpilot/internal/terminal"
	"github.com/eliteGoblin/navpilot/internal/usecase"
	"github.com/eliteGoblin/navpilot/internal/verify"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "navpilot",
	Short: "Keeps the focused browser on one address, like a person would",
	Long: `navpilot glides the mouse to the address bar of the focused browser
window, types the target address with a human cadence, checks it through
the clipboard and presses Enter, over and over.

Press Escape once to pause. Press Escape again to exit.`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runAutomation,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the navigation loop (default command)",
	RunE:  runAutomation,
}

var checkCmd = &cobra.Command{
	Use:   "check [address]",
	Short: "Show how an address would be typed and verified",
	Long: `Prints the key sequence navpilot would type for an address, its
normalized form, and whether it matches the configured target. No input is
injected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath string
	targetURL  string
	logLevel   string
	logFile    string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaid on the defaults")
	rootCmd.PersistentFlags().StringVar(&targetURL, "target", "", "Address to navigate to (default twitter.com)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig layers flags over the file over the defaults.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("target") {
		cfg.TargetURL = targetURL
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config (%s): %w", cfg.Source, err)
	}
	return cfg, nil
}

func runAutomation(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	platform, err := infra.NewPlatform()
	if errors.Is(err, infra.ErrUnsupportedPlatform) {
		fmt.Fprintln(cmd.OutOrStdout(), "navpilot only supports Windows.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("initialize platform: %w", err)
	}
	source, err := infra.NewKeyEventSource()
	if err != nil {
		return fmt.Errorf("initialize keyboard hook: %w", err)
	}

	logger.Info("starting navpilot",
		zap.String("version", Version),
		zap.String("platform", platform.Name()),
		zap.String("config", cfg.Source))
	fmt.Fprintf(cmd.OutOrStdout(), "Navigating to %s. Press Escape to pause.\n", cfg.TargetURL)

	loop := buildLoop(cfg, platform, source, infra.NewProcessManager(), cmd.OutOrStdout(), logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildLoop wires every component of a run around one shared state handle.
func buildLoop(
	cfg config.Config,
	platform domain.Platform,
	source domain.KeyEventSource,
	processes domain.ProcessManager,
	out io.Writer,
	logger *zap.Logger,
) *daemon.ControlLoop {
	shared := state.New()
	cursor := state.NewCursor(shared)
	sleeper := pause.NewSleeper(cfg.Slice, daemon.Interrupted(shared, cursor))

	timing := keys.Timing{
		MinHold:        cfg.Keys.MinHold,
		MaxHold:        cfg.Keys.MaxHold,
		MinInterKey:    cfg.Keys.MinInterKey,
		MaxInterKey:    cfg.Keys.MaxInterKey,
		MinModifierGap: cfg.Keys.MinModifierGap,
		MaxModifierGap: cfg.Keys.MaxModifierGap,
	}
	typist := keys.NewTypist(platform, sleeper, timing, nil)

	// Teardown echo happens after Exiting, so its waits only honor the context.
	echoTypist := keys.NewTypist(platform, pause.NewSleeper(cfg.Slice, nil), timing, nil)
	announcer := daemon.NewAnnouncer(shared, platform, platform, echoTypist, out, logger)

	controller := hook.NewController(source, shared, hook.Config{
		Debounce:       cfg.Hook.Debounce,
		InstallTimeout: cfg.Hook.InstallTimeout,
	}, nil, announcer.Announce, logger)

	verifier := verify.NewVerifier(typist, platform, sleeper, verify.Options{
		ClipboardAttempts: cfg.Verify.ClipboardAttempts,
		ClipboardInterval: cfg.Verify.ClipboardInterval,
		CopySettle:        cfg.Verify.CopySettle,
	}, controller.NoteSyntheticEscape, logger)

	synth := motion.NewSynthesizer(motion.Options{
		Steps:        cfg.Motion.Steps,
		MinStepDelay: cfg.Motion.MinStepDelay,
		MaxStepDelay: cfg.Motion.MaxStepDelay,
		MaxArcHeight: cfg.Motion.MaxArcHeight,
		Jitter:       cfg.Motion.Jitter,
	}, nil)

	navigator := usecase.NewNavigator(platform, platform, synth, typist, verifier, sleeper, usecase.NavigatorConfig{
		TargetURL:   cfg.TargetURL,
		OffsetX:     cfg.AddressBar.OffsetX,
		OffsetY:     cfg.AddressBar.OffsetY,
		ClickSettle: cfg.AddressBar.ClickSettle,
	}, controller.NoteSyntheticEscape, logger)

	terminals := terminal.NewManager(platform, platform, processes, terminal.Config{
		Path:          cfg.Terminal.Path,
		Args:          cfg.Terminal.Args,
		AttachTimeout: cfg.Terminal.AttachTimeout,
		AttachPoll:    cfg.Terminal.AttachPoll,
	}, logger)

	return daemon.NewControlLoop(daemon.LoopConfig{
		TargetURL: cfg.TargetURL,
		Cadence:   cfg.Cadence,
		Slice:     cfg.Slice,
	}, shared, cursor, sleeper, navigator, terminals, controller, announcer, logger)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	address := cfg.TargetURL
	if len(args) == 1 {
		address = args[0]
	}

	var typed, skipped []string
	for _, r := range address {
		if code, ok := keys.VirtualKeyForRune(r); ok {
			typed = append(typed, fmt.Sprintf("%q=0x%02X", r, uint16(code)))
		} else {
			skipped = append(skipped, fmt.Sprintf("%q", r))
		}
	}
	if len(skipped) == 0 {
		skipped = []string{"none"}
	}

	platformName := "unsupported (navpilot only supports Windows)"
	if p, err := infra.NewPlatform(); err == nil {
		platformName = p.Name()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config:     %s\n", cfg.Source)
	fmt.Fprintf(out, "Target:     %s\n", cfg.TargetURL)
	fmt.Fprintf(out, "Address:    %s\n", address)
	fmt.Fprintf(out, "Normalized: %s\n", verify.NormalizeURLText(address))
	fmt.Fprintf(out, "Matches:    %t\n", verify.URLTextMatchesTarget(address, cfg.TargetURL))
	fmt.Fprintf(out, "Keys:       %s\n", strings.Join(typed, " "))
	fmt.Fprintf(out, "Skipped:    %s\n", strings.Join(skipped, " "))
	fmt.Fprintf(out, "Platform:   %s\n", platformName)
	return nil
}

// createLogger builds a console logger, tee'd to cfg.File when set, and
// tags every entry with a fresh run id.
func createLogger(cfg config.LoggingConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.File != "" {
		path, err := config.ExpandHome(cfg.File)
		if err == nil {
			zc.OutputPaths = append(zc.OutputPaths, path)
		}
	}

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr only if the log file cannot be opened
		logger, _ = zap.NewDevelopment()
	}
	return logger.With(zap.String("run_id", uuid.NewString()))
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "navpilot %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
