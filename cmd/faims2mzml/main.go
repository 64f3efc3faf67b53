package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/app"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/convert"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/history"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/logging"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/msconvert"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/rawfile"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/supervisor"
)

const version = "v1.0.0"

var rootCmd = &cobra.Command{
	Use:   "faims2mzml <input path or wildcard>",
	Short: "Split FAIMS Thermo raw files into one mzML per compensation voltage",
	Long: `faims2mzml discovers the distinct compensation voltages (CV) in a FAIMS
acquisition and invokes msconvert once per voltage, producing one mzML file
per CV so downstream tools that cannot handle interleaved acquisition can
consume each voltage's scans independently.

Scan filter text is read from a sidecar scan filter index exported next to
the .raw file (<name>_ScanFilters.txt), or from the file named by
--filter-index.`,
	Args: cobra.ExactArgs(1),
}

var (
	flagOutputDir    string
	flagRecurse      int
	flagTimeout      int
	flagIgnoreErrors bool
	flagPreview      bool
	flagRenumber     bool
	flagScanStart    int
	flagScanEnd      int
	flagMSConvert    string
	flagFilterIndex  string
	flagLogLevel     string
	flagLogFile      string
	flagNoProgress   bool
	flagNoHistory    bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&flagOutputDir, "output", "o", "", "Output directory (default: alongside each input)")
	flags.IntVarP(&flagRecurse, "recurse", "r", 0, "Recurse into subdirectories up to this depth")
	flags.IntVarP(&flagTimeout, "timeout", "t", 0, "Minutes to wait for each msconvert call (0 or less waits indefinitely)")
	flags.BoolVar(&flagIgnoreErrors, "ignore-errors", false, "Keep processing remaining files when one fails")
	flags.BoolVarP(&flagPreview, "preview", "p", false, "Show the msconvert commands without running them")
	flags.BoolVar(&flagRenumber, "renumber", false, "Renumber spectrum indices and scan numbers in each output")
	flags.IntVar(&flagScanStart, "scan-start", 0, "First scan number to convert (0 = unbounded)")
	flags.IntVar(&flagScanEnd, "scan-end", 0, "Last scan number to convert (0 = unbounded)")
	flags.StringVar(&flagMSConvert, "msconvert", "", "Path to the msconvert binary")
	flags.StringVar(&flagFilterIndex, "filter-index", "", "Scan filter index file (default: <input>_ScanFilters.txt)")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	flags.StringVar(&flagLogFile, "log-file", "", "Also write the log to this file")
	flags.BoolVar(&flagNoProgress, "no-progress", false, "Disable the per-file progress bar")
	flags.BoolVar(&flagNoHistory, "no-history", false, "Do not record outcomes in the history database")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(completionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("faims2mzml " + version)
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate the autocompletion script for the specified shell",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		var err error
		switch args[0] {
		case "bash":
			err = cmd.Root().GenBashCompletion(os.Stdout)
		case "zsh":
			err = cmd.Root().GenZshCompletion(os.Stdout)
		case "fish":
			err = cmd.Root().GenFishCompletion(os.Stdout, true)
		case "powershell":
			err = cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating completion script: %v\n", err)
			os.Exit(1)
		}
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview <input path or wildcard>",
	Short: "Discover compensation voltages and show the commands that would run",
	Args:  cobra.ExactArgs(1),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversion outcomes",
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

// applyFlags layers command-line flags over the loaded configuration.
func applyFlags(a *app.App, cmd *cobra.Command, inputPath string) {
	cfg := a.Config
	cfg.InputPath = inputPath
	if flagOutputDir != "" {
		cfg.OutputDir = flagOutputDir
	}
	if flagRecurse > 0 {
		cfg.RecurseDepth = flagRecurse
	}
	// An explicit zero or negative timeout disables the deadline, so the
	// flag applies whenever it was passed rather than whenever nonzero.
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutMinutes = flagTimeout
	}
	if flagIgnoreErrors {
		cfg.IgnoreErrors = true
	}
	if flagPreview {
		cfg.Preview = true
	}
	if flagRenumber {
		cfg.RenumberScans = true
	}
	if flagScanStart > 0 {
		cfg.ScanStart = flagScanStart
	}
	if flagScanEnd > 0 {
		cfg.ScanEnd = flagScanEnd
	}
	if flagMSConvert != "" {
		cfg.MSConvertPath = flagMSConvert
	}
	if flagNoHistory {
		cfg.HistoryEnabled = false
	}
	cfg.NoProgress = flagNoProgress

	// The app logger is built before flags are parsed; rebuild it when the
	// log flags override the configured values.
	if flagLogLevel != "" || flagLogFile != "" {
		if flagLogLevel != "" {
			cfg.LogLevel = flagLogLevel
		}
		if flagLogFile != "" {
			cfg.LogFile = flagLogFile
		}
		if logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFile); err == nil {
			a.Logger = logger
		}
	}
}

func runConvertCmd(a *app.App, cmd *cobra.Command, args []string) error {
	applyFlags(a, cmd, args[0])
	if err := a.Config.Validate(); err != nil {
		return err
	}

	converterPath, err := msconvert.Locate(a.Config.MSConvertPath)
	if err != nil {
		if !a.Config.Preview {
			return err
		}
		// Preview composes commands without running them, so a missing
		// binary only degrades the displayed program name.
		a.Logger.Warn("msconvert not found; preview uses the bare binary name", zap.Error(err))
		converterPath = msconvert.ExeName
	}

	var store *history.Store
	if a.Config.HistoryEnabled && !a.Config.Preview {
		store, err = history.Open(a.Config.ResolveHistoryDBPath())
		if err != nil {
			a.Logger.Warn("conversion history disabled", zap.Error(err))
		} else {
			defer store.Close()
		}
	}

	driver := convert.NewDriver(supervisor.New(a.Logger), a.Logger, convert.Options{
		MSConvertPath:  converterPath,
		OutputDir:      a.Config.OutputDir,
		TimeoutMinutes: a.Config.TimeoutMinutes,
		Preview:        a.Config.Preview,
		RenumberScans:  a.Config.RenumberScans,
		ScanStart:      a.Config.ScanStart,
		ScanEnd:        a.Config.ScanEnd,
	})
	processor := convert.NewProcessor(driver, a.Logger, store, a.Config.NoProgress)

	openReader := func(inputPath string) (rawfile.ScanReader, error) {
		indexPath := flagFilterIndex
		if indexPath == "" {
			indexPath = rawfile.SidecarPath(inputPath)
		}
		return rawfile.LoadFilterIndex(indexPath)
	}

	ok, err := processor.ProcessMatching(a.Ctx, a.Config.InputPath,
		a.Config.RecurseDepth, a.Config.IgnoreErrors, openReader)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("one or more conversions failed")
	}

	fmt.Println("All conversions completed successfully")
	return nil
}

func runPreviewCmd(a *app.App, cmd *cobra.Command, args []string) error {
	flagPreview = true
	return runConvertCmd(a, cmd, args)
}

func runHistoryCmd(a *app.App, cmd *cobra.Command, args []string) error {
	if flagOutputDir != "" {
		a.Config.OutputDir = flagOutputDir
	}

	store, err := history.Open(a.Config.ResolveHistoryDBPath())
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	records, err := store.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No conversions recorded yet")
		return nil
	}

	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "FAILED"
		}
		fmt.Printf("%s  %-6s  cv=%.0f  %s -> %s  (%s)\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), status, rec.CV,
			rec.InputFile, rec.OutputFile, rec.Duration.Round(time.Second))
	}
	return nil
}

// newAppRunner creates a Cobra RunE closure carrying the app.App instance.
func newAppRunner(a *app.App, runFunc func(*app.App, *cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return runFunc(a, cmd, args)
	}
}

func main() {
	appInstance, err := app.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer appInstance.Close()

	rootCmd.RunE = newAppRunner(appInstance, runConvertCmd)
	previewCmd.RunE = newAppRunner(appInstance, runPreviewCmd)
	historyCmd.RunE = newAppRunner(appInstance, runHistoryCmd)
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
