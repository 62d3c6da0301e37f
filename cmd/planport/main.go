package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/planport/internal/app"
	"github.com/ajitpratap0/planport/pkg/config"
	"github.com/ajitpratap0/planport/pkg/importer"
)

var version = "0.1.0"

// errImportFailed makes the process exit non-zero after the summary was printed.
var errImportFailed = errors.New("import failed")

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errImportFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "planport",
		Short: "planport - load delimited text into planning model imports",
		Long: `planport uploads CSV data into the file behind a planning model import action,
runs the import as a server task and reports the outcome, including any failure dump.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "planport v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newImportCmd(), newConfigCmd())
	return root
}

type importFlags struct {
	configFile string
	file       string
	output     string
	quiet      bool
	req        importer.Request
}

func newImportCmd() *cobra.Command {
	var f importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run an import action with CSV data",
		Long: `Run an import action with CSV data read from --file or standard input.

Example:
  planport import --workspace 8a81b09c --model 75A40874 --import 112000000001 --file sales.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to YAML configuration file (optional)")
	flags.StringVarP(&f.file, "file", "f", "-", "CSV file to import, - for standard input")
	flags.StringVarP(&f.output, "output", "o", "text", "Output format: text or json")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print status lines")
	flags.StringVarP(&f.req.WorkspaceID, "workspace", "w", "", "Workspace ID (required)")
	flags.StringVarP(&f.req.ModelID, "model", "m", "", "Model ID (required)")
	flags.StringVarP(&f.req.ImportID, "import", "i", "", "Import action ID or name (required)")
	flags.StringVar(&f.req.ColumnSeparator, "separator", ",", "Column separator, one character")
	flags.StringVar(&f.req.QuoteDelimiter, "quote", "\"", "Quote character, one character")
	_ = cmd.MarkFlagRequired("workspace")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("import")

	return cmd
}

func runImport(cmd *cobra.Command, f importFlags) error {
	if f.output != "text" && f.output != "json" {
		return fmt.Errorf("unsupported output format %q", f.output)
	}

	cfg, err := loadConfig(f.configFile)
	if err != nil {
		return err
	}

	data, err := readInput(cmd.InOrStdin(), f.file)
	if err != nil {
		return err
	}
	f.req.Data = data

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{Version: version}
	if !f.quiet {
		opts.StatusWriter = cmd.ErrOrStderr()
	}
	a, err := app.New(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close(context.Background())

	out, err := a.RunImport(ctx, f.req)
	if err != nil {
		return err
	}

	if err := printOutcome(cmd.OutOrStdout(), f.output, out); err != nil {
		return err
	}
	if out.Failed() {
		return errImportFailed
	}
	return nil
}

func printOutcome(w io.Writer, format string, out *importer.Outcome) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintln(w, out.Summary())
	return err
}

func readInput(stdin io.Reader, file string) (string, error) {
	if file == "" || file == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(b), nil
}

// loadConfig reads the config file, or defaults plus PLANPORT_* environment
// overrides when path is empty.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration file with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "planport.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(path, config.NewDefault()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
