package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/discovery"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/renumber"
	"github.com/PNNL-Comp-Mass-Spec/Thermo-FAIMS-to-MzML/internal/supervisor"
)

// OutputExtension is the converter's output format extension.
const OutputExtension = ".mzML"

// Runner launches an external command and supervises it to completion.
// Satisfied by supervisor.Supervisor.
type Runner interface {
	Run(ctx context.Context, cmd supervisor.Command) (supervisor.Result, error)
}

// Options control one conversion run.
type Options struct {
	MSConvertPath  string
	OutputDir      string
	TimeoutMinutes int
	Preview        bool
	RenumberScans  bool
	// ScanStart and ScanEnd bound the converted scans; zero means unbounded.
	ScanStart int
	ScanEnd   int
}

// Outcome is the result of converting one compensation voltage.
type Outcome struct {
	CV         float64
	OutputPath string
	Success    bool
	Duration   time.Duration
}

// Driver runs msconvert once per discovered compensation voltage and
// optionally renumbers and reindexes each produced file.
type Driver struct {
	runner     Runner
	renumberer *renumber.Renumberer
	logger     *zap.Logger
	opts       Options
}

// NewDriver creates a Driver.
func NewDriver(runner Runner, logger *zap.Logger, opts Options) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		runner:     runner,
		renumberer: renumber.New(logger),
		logger:     logger,
		opts:       opts,
	}
}

// OutputName builds the per-CV output file name: the input's base name plus
// the voltage formatted with zero decimal places, e.g. sample_-45.mzML.
func OutputName(inputPath string, cv float64) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return fmt.Sprintf("%s_%.0f%s", base, cv, OutputExtension)
}

// RenumberedName is the intermediate name used between the renumber and
// reindex steps.
func RenumberedName(outputName string) string {
	return strings.TrimSuffix(outputName, OutputExtension) + "_renumbered" + OutputExtension
}

// ConvertCV converts the scans carrying one compensation voltage.
// Failures are folded into the outcome; earlier voltages already converted
// in the same run stay successful.
func (d *Driver) ConvertCV(ctx context.Context, inputPath string, obs discovery.Observation) Outcome {
	started := time.Now()

	outputDir := d.outputDir(inputPath)
	outputName := OutputName(inputPath, obs.Value)
	outcome := Outcome{CV: obs.Value, OutputPath: filepath.Join(outputDir, outputName)}

	cmd := supervisor.Command{
		Program:        d.opts.MSConvertPath,
		Args:           d.convertArgs(inputPath, outputDir, outputName, obs.FilterMatch),
		WorkDir:        outputDir,
		TimeoutMinutes: d.opts.TimeoutMinutes,
	}

	if d.opts.Preview {
		fmt.Printf("Preview: %s %s\n", cmd.Program, strings.Join(cmd.Args, " "))
		if d.opts.RenumberScans {
			renumberedName := RenumberedName(outputName)
			fmt.Printf("Preview: renumber %s to %s\n", outputName, renumberedName)
			reindex := d.reindexCommand(outputDir, outputName, renumberedName)
			fmt.Printf("Preview: %s %s\n", reindex.Program, strings.Join(reindex.Args, " "))
		}
		outcome.Success = true
		outcome.Duration = time.Since(started)
		return outcome
	}

	result, err := d.runner.Run(ctx, cmd)
	if err != nil || !result.Success() {
		d.logger.Error("msconvert failed",
			zap.Float64("cv", obs.Value),
			zap.String("state", result.State.String()),
			zap.Int("exitCode", result.ExitCode),
			zap.Error(err))
		outcome.Duration = time.Since(started)
		return outcome
	}

	if d.opts.RenumberScans {
		if err := d.renumberAndReindex(ctx, outputDir, outputName); err != nil {
			d.logger.Error("renumbering failed",
				zap.Float64("cv", obs.Value),
				zap.String("output", outputName),
				zap.Error(err))
			outcome.Duration = time.Since(started)
			return outcome
		}
	}

	outcome.Success = true
	outcome.Duration = time.Since(started)
	return outcome
}

// outputDir resolves where output for the given input lands.
func (d *Driver) outputDir(inputPath string) string {
	if d.opts.OutputDir != "" {
		return d.opts.OutputDir
	}
	return filepath.Dir(inputPath)
}

// convertArgs composes the msconvert arguments for one voltage: 32-bit
// peaks, zlib-compressed mzML, a scan-filter-text clause pinning the
// voltage, and an optional scan-number window.
func (d *Driver) convertArgs(inputPath, outputDir, outputName, filterMatch string) []string {
	args := []string{
		"--32", "--mzML", "--zlib",
		"--filter", fmt.Sprintf("thermoScanFilter contains include %s", filterMatch),
	}

	if clause, ok := scanNumberClause(d.opts.ScanStart, d.opts.ScanEnd); ok {
		args = append(args, "--filter", clause)
	}

	// The command runs with the output directory as its workdir, so an input
	// in that directory is addressed by bare name and anything else by
	// absolute path; a relative path would resolve against the workdir.
	inputArg := absPath(inputPath)
	if absPath(filepath.Dir(inputPath)) == absPath(outputDir) {
		inputArg = filepath.Base(inputPath)
	}

	return append(args, "-o", absPath(outputDir), "--outfile", outputName, inputArg)
}

// absPath resolves p against the current directory. Converter arguments
// must not depend on the subprocess workdir.
func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// scanNumberClause expresses the inclusive scan-number window in
// msconvert's range syntax.
func scanNumberClause(start, end int) (string, bool) {
	switch {
	case start > 0 && end > 0:
		return fmt.Sprintf("scanNumber [%d,%d]", start, end), true
	case start > 0:
		return fmt.Sprintf("scanNumber [%d-]", start), true
	case end > 0:
		return fmt.Sprintf("scanNumber [1,%d]", end), true
	default:
		return "", false
	}
}

// reindexCommand builds the second msconvert pass that rebuilds the offset
// index of a renumbered file.
func (d *Driver) reindexCommand(outputDir, outputName, renumberedName string) supervisor.Command {
	return supervisor.Command{
		Program:        d.opts.MSConvertPath,
		Args:           []string{"--32", "--mzML", "--zlib", "-o", absPath(outputDir), "--outfile", outputName, renumberedName},
		WorkDir:        outputDir,
		TimeoutMinutes: d.opts.TimeoutMinutes,
	}
}

// renumberAndReindex rewrites the spectrum numbering of one converted file
// and then runs msconvert a second time to rebuild its offset index. The
// intermediate file is deleted on success and left behind for diagnosis on
// failure.
func (d *Driver) renumberAndReindex(ctx context.Context, outputDir, outputName string) error {
	outputPath := filepath.Join(outputDir, outputName)
	renumberedName := RenumberedName(outputName)
	renumberedPath := filepath.Join(outputDir, renumberedName)

	if err := d.renumberer.RenumberFile(outputPath, renumberedPath); err != nil {
		return err
	}

	result, err := d.runner.Run(ctx, d.reindexCommand(outputDir, outputName, renumberedName))
	if err != nil {
		return fmt.Errorf("reindexing %s: %w", renumberedName, err)
	}
	if !result.Success() {
		return fmt.Errorf("reindexing %s: msconvert exited with code %d", renumberedName, result.ExitCode)
	}

	if err := os.Remove(renumberedPath); err != nil {
		d.logger.Warn("could not delete renumbered intermediate",
			zap.String("path", renumberedPath),
			zap.Error(err))
	}
	return nil
}
