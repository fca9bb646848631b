package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibesql/sqlrun/internal/database"
	"github.com/vibesql/sqlrun/internal/version"
)

type cmdGlobal struct {
	flagLogLevel  string
	flagLogFormat string
}

// logger builds the CLI logger. Output goes to the command's stderr so
// results on stdout stay clean.
func (g *cmdGlobal) logger(w io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(g.flagLogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(level)

	switch g.flagLogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
	default:
		return nil, fmt.Errorf("invalid --log-format %q", g.flagLogFormat)
	}

	return log, nil
}

func newRootCommand() *cobra.Command {
	app := &cobra.Command{}
	app.Use = "sqlrun"
	app.Short = "Run SQL scripts against any database/sql driver"
	app.Long = `Description:
  Run SQL scripts against any database/sql driver

  A script is either a single statement, whose result is shaped by the
  selected output mode, or a batch of statements split by a separator and
  run in one transaction.
`
	app.SilenceUsage = true
	app.SilenceErrors = true
	app.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}

	// Global flags.
	globalCmd := cmdGlobal{}
	app.PersistentFlags().StringVar(&globalCmd.flagLogLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	app.PersistentFlags().StringVar(&globalCmd.flagLogFormat, "log-format", "text", "Log format (text or json)")

	// Version handling.
	app.SetVersionTemplate("{{.Version}}\n")
	app.Version = version.Get().Short()

	runCmd := cmdRun{global: &globalCmd}
	app.AddCommand(runCmd.Command())

	serveCmd := cmdServe{global: &globalCmd}
	app.AddCommand(serveCmd.Command())

	versionCmd := cmdVersion{}
	app.AddCommand(versionCmd.Command())

	return app
}

// printError writes err, listing every validation message.
func printError(w io.Writer, err error) {
	var coded *database.Error
	if errors.As(err, &coded) && len(coded.Messages) > 0 {
		fmt.Fprintf(w, "Error: %s\n", coded.Message)
		for _, msg := range coded.Messages {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		return
	}

	fmt.Fprintf(w, "Error: %v\n", err)
}

func main() {
	app := newRootCommand()

	err := app.Execute()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
