package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/giygas/patient-records/combine"
	"github.com/giygas/patient-records/config"
	"github.com/giygas/patient-records/logging"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// cliFlags are the command-line overrides of the environment configuration.
type cliFlags struct {
	dataDir    string
	outputDir  string
	outputName string
	pattern    string
	noXLSX     bool
	workers    int
	topMissing int
	verbose    bool
	port       string
	address    string
}

type app struct {
	flags  cliFlags
	cfg    *config.Config
	stdout io.Writer
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	a := &app{stdout: stdout}

	root := &cobra.Command{
		Use:           "patient-records",
		Short:         "Combine per-patient JSON records into one flat dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.configure(cmd)
		},
	}
	root.SetOut(stdout)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "directory holding patient_*/patient_*.json records (DATA_DIR)")
	pf.StringVar(&a.flags.outputDir, "output-dir", "", "directory the dataset files are written to (OUTPUT_DIR)")
	pf.StringVar(&a.flags.outputName, "output-name", "", "base name of the dataset files (OUTPUT_NAME)")
	pf.StringVar(&a.flags.pattern, "pattern", "", "glob of record files relative to the data directory (FILE_PATTERN)")
	pf.BoolVar(&a.flags.noXLSX, "no-xlsx", false, "skip the spreadsheet export")
	pf.IntVar(&a.flags.workers, "workers", 0, "record files processed concurrently (WORKERS)")
	pf.IntVar(&a.flags.topMissing, "top-missing", 0, "columns listed in the missing values report (TOP_MISSING)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log debug output to the console")

	root.AddCommand(a.combineCmd(), a.serveCmd())
	return root
}

// configure loads the environment configuration, applies the flags the
// user set and starts logging.
func (a *app) configure(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = a.flags.dataDir
	}
	if flags.Changed("output-dir") {
		cfg.OutputDir = a.flags.outputDir
	}
	if flags.Changed("output-name") {
		cfg.OutputName = a.flags.outputName
	}
	if flags.Changed("pattern") {
		cfg.FilePattern = a.flags.pattern
	}
	if a.flags.noXLSX {
		cfg.ExportXLSX = false
	}
	if flags.Changed("workers") {
		cfg.Workers = a.flags.workers
	}
	if flags.Changed("top-missing") {
		cfg.TopMissing = a.flags.topMissing
	}
	if flags.Changed("port") {
		cfg.Port = a.flags.port
	}
	if flags.Changed("address") {
		cfg.Address = a.flags.address
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	opts := logging.OptionsFromConfig(cfg)
	opts.Verbose = a.flags.verbose
	if err := logging.Init(opts); err != nil {
		logging.Warn("File logging disabled", "error", err)
	}

	a.cfg = cfg
	return nil
}

func (a *app) combineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine",
		Short: "Combine every record file into one CSV (and XLSX) dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := combine.Run(cmd.Context(), combine.OptionsFromConfig(a.cfg))
			if err != nil {
				return &exitError{code: combine.ExitFatal, err: err}
			}
			if err := combine.PrintSummary(a.stdout, res); err != nil {
				return &exitError{code: combine.ExitFatal, err: err}
			}
			if code := res.ExitCode(); code != combine.ExitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return combine.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return combine.ExitFatal
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	if cerr := logging.Close(); cerr != nil {
		fmt.Fprintf(stderr, "failed to close log file: %v\n", cerr)
	}
	var ee *exitError
	if err != nil && !(errors.As(err, &ee) && ee.err == nil) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func main() {
	// A missing .env file is fine; the environment and flags still apply.
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
