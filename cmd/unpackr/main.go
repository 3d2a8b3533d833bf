// Package main implements the unpackr command: recursive, password-aware
// extraction of archives and whole download folders.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

// Version is the tool version, stamped at build time when releasing.
var Version = "2.0.0" //nolint:gochecknoglobals

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := buildApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildApp() *cli.Command {
	return &cli.Command{
		Name:      "unpackr",
		Usage:     "Recursively extract archives and download folders, trying known passwords",
		Version:   Version,
		ArgsUsage: "<path...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory (default: current directory)"},
			&cli.StringSliceFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password to try; repeatable"},
			&cli.StringFlag{Name: "password-file", Usage: "Password store, one per line; learned passwords are saved back"},
			&cli.StringFlag{Name: "rules", Usage: "JSON file with extra cloaked-name repair rules"},
			&cli.IntFlag{Name: "max-depth", Usage: "How deep to follow nested archives; 0 disables recursion"},
			&cli.DurationFlag{Name: "timeout", Usage: "Per-attempt extraction timeout; 0 disables the bound"},
			&cli.StringFlag{Name: "backend", Usage: "Extraction backend: 'embedded', or a 7-Zip binary name or path"},
			&cli.BoolFlag{Name: "keep", Usage: "Keep consumed archives instead of cleaning them up"},
			&cli.BoolFlag{Name: "permanent-delete", Usage: "Delete consumed archives instead of moving them to the trash folder"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Prompt for passwords when the known ones fail"},
			&cli.BoolFlag{Name: "overwrite", Usage: "Overwrite existing files"},
			&cli.BoolFlag{Name: "fix-encoding", Usage: "Repair extracted file names written in legacy codepages"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug output"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Only failures and warnings"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file (default: ~/.unpackr/config.yaml)"},
		},
		Action: runExtract,
		Commands: []*cli.Command{{
			Name:      "inspect",
			Aliases:   []string{"ls", "list"},
			Usage:     "Classify an archive and list its contents without extracting",
			ArgsUsage: "<archive>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password for encrypted listings"},
				&cli.StringFlag{Name: "backend", Usage: "Extraction backend: 'embedded', or a 7-Zip binary name or path"},
				&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Debug output"},
			},
			Action: runInspect,
		}},
	}
}

func runExtract(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return errors.New("nothing to do; pass archive files or folders")
	}

	fileCfg, err := loadFileConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	quiet := cmd.Bool("quiet")
	logger := newCliLogger(cmd.Bool("verbose"), quiet)
	reporter := unpackr.NewConsoleReporter(os.Stdout, quiet)

	unp, err := buildUnpackr(cmd, fileCfg, logger, reporter)
	if err != nil {
		return err
	}

	output := firstNonEmpty(cmd.String("output"), fileCfg.Output)
	if output == "" {
		if output, err = os.Getwd(); err != nil {
			return fmt.Errorf("resolving output directory: %w", err)
		}
	}

	failed := 0

	for _, path := range paths {
		result := processPath(ctx, unp, path, output)
		if !result.Success {
			failed++
		}

		printSummary(path, result, quiet)
	}

	savePasswords(cmd, fileCfg, unp, logger)

	if failed > 0 {
		return fmt.Errorf("%d of %d input path(s) failed", failed, len(paths))
	}

	return nil
}

// buildUnpackr merges flags over the config file and constructs the
// library instance.
func buildUnpackr(cmd *cli.Command, fileCfg *fileConfig, logger unpackr.Logger, reporter unpackr.Reporter) (*unpackr.Unpackr, error) {
	backend, err := pickBackend(firstNonEmpty(cmd.String("backend"), fileCfg.Backend), logger)
	if err != nil {
		return nil, err
	}

	var rules *unpackr.CloakRuleSet

	if rulesPath := firstNonEmpty(cmd.String("rules"), fileCfg.Rules); rulesPath != "" {
		if rules, err = unpackr.LoadCloakRules(rulesPath); err != nil {
			return nil, err
		}
	}

	var prompter unpackr.Prompter
	if cmd.Bool("interactive") {
		prompter = unpackr.NewTerminalPrompter(nil, nil, reporter)
	}

	maxDepth := fileCfg.MaxDepth
	if cmd.IsSet("max-depth") {
		if maxDepth = int(cmd.Int("max-depth")); maxDepth == 0 {
			maxDepth = -1 // explicit zero means no recursion at all.
		}
	}

	timeout := fileCfg.Timeout
	if cmd.IsSet("timeout") {
		if timeout = cmd.Duration("timeout"); timeout == 0 {
			timeout = -1 * time.Second
		}
	}

	return unpackr.New(&unpackr.Config{
		Backend:         backend,
		Logger:          logger,
		Reporter:        reporter,
		Prompter:        prompter,
		Passwords:       append(cmd.StringSlice("password"), fileCfg.Passwords...),
		PasswordFile:    firstNonEmpty(cmd.String("password-file"), fileCfg.PasswordFile),
		CloakRules:      rules,
		MaxDepth:        maxDepth,
		Timeout:         timeout,
		KeepArchives:    cmd.Bool("keep") || fileCfg.Keep,
		PermanentDelete: cmd.Bool("permanent-delete") || fileCfg.PermanentDelete,
		Overwrite:       cmd.Bool("overwrite") || fileCfg.Overwrite,
		RepairEncoding:  cmd.Bool("fix-encoding") || fileCfg.FixEncoding,
		Similarity:      fileCfg.Similarity,
	})
}

// processPath extracts one input: folders run the drop-folder pipeline,
// files extract directly.
func processPath(ctx context.Context, unp *unpackr.Unpackr, path, output string) *unpackr.ExtractionResult {
	info, err := os.Stat(path)

	switch {
	case err != nil:
		result := &unpackr.ExtractionResult{}
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))

		return result
	case info.IsDir():
		return unp.ProcessDirectory(ctx, path, output)
	default:
		return unp.Run(ctx, path, output)
	}
}

// savePasswords persists newly learned passwords back into the store.
func savePasswords(cmd *cli.Command, fileCfg *fileConfig, unp *unpackr.Unpackr, logger unpackr.Logger) {
	store := firstNonEmpty(cmd.String("password-file"), fileCfg.PasswordFile)
	if store == "" {
		return
	}

	if err := unp.Registry().Flush(store); err != nil {
		logger.Printf("Error: saving passwords to %s: %v", store, err)
	}
}

//nolint:gochecknoglobals
var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

func printSummary(path string, result *unpackr.ExtractionResult, quiet bool) {
	if !result.Success {
		failColor.Printf("Failed: %s (%d error(s))\n", path, len(result.Errors))
		return
	}

	if quiet {
		return
	}

	okColor.Printf("Done: %s (%d archive(s), %d file(s))\n",
		path, len(result.ExtractedArchives), len(result.FinalFiles))

	for _, note := range result.Unextracted {
		warnColor.Printf("  skipped: %s\n", note)
	}
}

func runInspect(ctx context.Context, cmd *cli.Command) error {
	archive := cmd.Args().First()
	if archive == "" {
		return errors.New("archive path is required")
	}

	logger := newCliLogger(cmd.Bool("verbose"), false)

	backend, err := pickBackend(cmd.String("backend"), logger)
	if err != nil {
		return err
	}

	// New resolves the default backend when none was picked explicitly.
	unp, err := unpackr.New(&unpackr.Config{Backend: backend, Logger: logger})
	if err != nil {
		return err
	}

	cls := unpackr.NewClassifier(nil, logger).Classify(archive)
	kind := cls.Type

	if kind == "" {
		kind = "unknown"
	}

	fmt.Printf("%s: %s (by %s)\n", archive, kind, cls.Method)

	entries, res, err := unp.Backend().List(ctx, archive, cmd.String("password"))
	if outcome := unpackr.ClassifyResult(res, err); outcome != unpackr.OutcomeSuccess {
		return fmt.Errorf("listing %s: %w", archive, outcome.Err())
	}

	var total int64

	for _, entry := range entries {
		mark := " "
		if entry.Encrypted {
			mark = "*"
		}

		name := entry.Path
		if entry.Dir {
			name += "/"
		}

		modified := ""
		if !entry.Modified.IsZero() {
			modified = entry.Modified.Format("2006-01-02 15:04")
		}

		fmt.Printf("%12d  %-16s %s%s\n", entry.Size, modified, mark, name)
		total += entry.Size
	}

	fmt.Printf("%12d  total, %d entr%s (* = encrypted)\n", total, len(entries), plural(len(entries), "y", "ies"))

	return nil
}

// pickBackend maps the --backend value to a Backend. Empty means let the
// library choose.
func pickBackend(name string, logger unpackr.Logger) (unpackr.Backend, error) {
	switch name {
	case "", "auto":
		return nil, nil //nolint:nilnil // nil backend selects the default.
	case "embedded":
		return unpackr.NewEmbedded(logger), nil
	default:
		return unpackr.NewSevenZipCLI(name, logger)
	}
}

// cliLogger renders operational lines to stderr, dimming debug output.
type cliLogger struct {
	debug bool
	quiet bool
	dim   func(a ...any) string
}

func newCliLogger(debug, quiet bool) *cliLogger {
	return &cliLogger{
		debug: debug,
		quiet: quiet,
		dim:   color.New(color.Faint).SprintFunc(),
	}
}

func (l *cliLogger) Printf(msg string, v ...any) {
	if l.quiet {
		return
	}

	fmt.Fprintf(os.Stderr, msg+"\n", v...)
}

func (l *cliLogger) Debugf(msg string, v ...any) {
	if !l.debug || l.quiet {
		return
	}

	fmt.Fprintf(os.Stderr, l.dim("[debug] ")+msg+"\n", v...)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}

func plural(count int, one, many string) string {
	if count == 1 {
		return one
	}

	return many
}
