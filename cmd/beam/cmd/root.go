// Package cmd implements the beam CLI commands.
//
// The command structure follows standard Go CLI patterns with a root command
// that dispatches to subcommands (parse, check, precompile, render).
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-drift/beam/pkg/logging"
	"github.com/go-drift/beam/pkg/settings"
)

// Version information set at build time.
var (
	Version   = "0.1.0-dev"
	BuildTime = "unknown"
)

// Command represents a CLI command.
type Command struct {
	Name        string
	Short       string
	Long        string
	Usage       string
	Run         func(args []string) error
	SubCommands []*Command
}

var rootCmd = &Command{
	Name:  "beam",
	Short: "Beam - reactive components for TV applications",
	Long: `Beam compiles component templates and prepares component sources
ahead of time.

Use "beam <command> --help" for more information about a command.`,
	Usage: "beam <command> [flags]",
}

// Commands registered with the CLI.
var commands = make(map[string]*Command)

// RegisterCommand adds a command to the CLI.
func RegisterCommand(cmd *Command) {
	commands[cmd.Name] = cmd
	rootCmd.SubCommands = append(rootCmd.SubCommands, cmd)
}

// stdout and stderr are replaced by tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

var (
	logLevel   = new(slog.LevelVar)
	logJSON    bool
	logJournal bool
	logger     *slog.Logger

	// newLogger is replaced by tests.
	newLogger = logging.New
)

// Execute runs the CLI with the process arguments.
func Execute() error {
	return run(os.Args[1:])
}

func run(args []string) error {
	logLevel.Set(slog.LevelWarn)
	logJSON = false
	// systemd sets JOURNAL_STREAM for services whose output goes to the
	// journal
	logJournal = os.Getenv("JOURNAL_STREAM") != ""

	// Handle no arguments
	if len(args) == 0 {
		printHelp(rootCmd)
		return nil
	}

	// Handle global flags
	var filteredArgs []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-h", "--help", "help":
			if len(filteredArgs) == 0 {
				printHelp(rootCmd)
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "-v", "--version":
			if len(filteredArgs) == 0 {
				printVersion()
				return nil
			}
			filteredArgs = append(filteredArgs, arg)
		case "--log-level":
			if i+1 >= len(args) {
				return fmt.Errorf("--log-level requires a level")
			}
			if err := setLevel(args[i+1]); err != nil {
				return err
			}
			i++
		case "--json-logs":
			logJSON = true
		case "--journal":
			logJournal = true
		default:
			if strings.HasPrefix(arg, "--log-level=") {
				if err := setLevel(strings.TrimPrefix(arg, "--log-level=")); err != nil {
					return err
				}
				continue
			}
			filteredArgs = append(filteredArgs, arg)
		}
	}
	args = filteredArgs

	if len(args) == 0 {
		printHelp(rootCmd)
		return nil
	}

	logger = newLogger(logging.Options{
		Writer:  stderr,
		Level:   logLevel,
		JSON:    logJSON,
		Journal: logJournal,
	})

	// Find and execute the command
	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n\n", cmdName)
		printHelp(rootCmd)
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	// Check for help flag on subcommand
	cmdArgs := args[1:]
	for _, arg := range cmdArgs {
		if arg == "-h" || arg == "--help" || arg == "help" {
			printCommandHelp(cmd)
			return nil
		}
	}

	return cmd.Run(cmdArgs)
}

func setLevel(s string) error {
	level, err := settings.ParseLevel(s)
	if err != nil {
		return err
	}
	logLevel.Set(level)
	return nil
}

func printVersion() {
	fmt.Fprintf(stdout, "Beam CLI version %s (built %s)\n", Version, BuildTime)
}

func printHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	for _, sub := range cmd.SubCommands {
		fmt.Fprintf(stdout, "  %-14s %s\n", sub.Name, sub.Short)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Flags:")
	fmt.Fprintln(stdout, "  -h, --help           Show help for a command")
	fmt.Fprintln(stdout, "  -v, --version        Show version information")
	fmt.Fprintln(stdout, "  --log-level LEVEL    debug, info, warn or error (default: warn)")
	fmt.Fprintln(stdout, "  --json-logs          Write logs as JSON even on a terminal")
	fmt.Fprintln(stdout, "  --journal            Also log to the systemd journal (default when JOURNAL_STREAM is set)")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintln(stdout, "  beam parse ui/menu.tmpl       Print the parsed tree as JSON")
	fmt.Fprintln(stdout, "  beam check ui/*.tmpl          Report template errors")
	fmt.Fprintln(stdout, "  beam precompile --diff        Guard computed values, write template trees")
	fmt.Fprintln(stdout, "  beam render ui/menu.tmpl      Print the mounted node tree")
}

func printCommandHelp(cmd *Command) {
	fmt.Fprintln(stdout, cmd.Long)
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Usage:")
	fmt.Fprintf(stdout, "  %s\n", cmd.Usage)
}
