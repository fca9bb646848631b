package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vibesql/sqlrun/internal/config"
	"github.com/vibesql/sqlrun/internal/connector"
	"github.com/vibesql/sqlrun/internal/naming"
)

type cmdRun struct {
	global *cmdGlobal
	v      *viper.Viper
}

func (c *cmdRun) Command() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Use = "run"
	cmd.Short = "Execute a script once and print its result"
	cmd.Long = `Description:
  Execute a script once and print its result

  The connection is either a driver and URL, or a datasource name resolved
  through a naming context configured with --property entries. Every flag
  can also be set in the job file given with --config, or through an
  environment variable such as SQLRUN_URL.

  If --script-file is "-", the script is read from standard input.
`
	cmd.Example = `  sqlrun run --driver sqlite3 --url people.db --output single --script "SELECT COUNT(*) FROM people"
  sqlrun run --driver postgres --url postgres://db/app --username app --separator ";" --script-file migrate.sql
  sqlrun run --resources datasources.yaml --datasource jdbc/app --output table --script "SELECT * FROM users"`
	cmd.Args = cobra.NoArgs
	cmd.RunE = c.Run

	flags := cmd.Flags()
	flags.String("script", "", "SQL script to run")
	flags.String("script-file", "", "Read the script from a file (\"-\" for stdin)")
	flags.String("separator", "", "Split the script into a batch on any of these characters")
	flags.String("output", "", "Output mode (resultset, single, one_row, n_row, table)")
	flags.Int("max-rows", 0, "Fail when a result has more rows (0 for no limit)")
	flags.String("driver", "", "Driver name (postgres, sqlite3, or a class-style alias)")
	flags.String("url", "", "Connection URL or DSN")
	flags.String("username", "", "Database user")
	flags.String("password", "", "Database password")
	flags.String("datasource", "", "Datasource name resolved through the naming context")
	flags.StringArray("property", nil, "Naming context property as key=value (repeatable)")
	flags.String("resources", "", "Bind the datasources declared in this file before running")
	flags.String("config", "", "Job file holding any of the above settings")

	c.v = viper.New()
	_ = c.v.BindPFlags(flags)
	c.v.SetEnvPrefix(config.EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	return cmd
}

func (c *cmdRun) Run(cmd *cobra.Command, args []string) error {
	log, err := c.global.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if path := c.v.GetString("config"); path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read job file: %w", err)
		}
	}

	params, err := c.parameters(cmd)
	if err != nil {
		return err
	}

	if path := c.v.GetString("resources"); path != "" {
		resources, err := naming.LoadResources(path)
		if err != nil {
			return err
		}

		release, err := naming.BindResources(resources)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				log.Warnf("Failed to release datasources: %v", err)
			}
		}()
	}

	return connector.Run(cmd.Context(), connector.New(connector.WithLogger(log)), params, func(result connector.Result) error {
		return printResult(cmd.OutOrStdout(), result)
	})
}

// parameters builds the connector input from flags, environment and job
// file, in that order of precedence.
func (c *cmdRun) parameters(cmd *cobra.Command) (connector.Parameters, error) {
	params := connector.Parameters{}

	script := c.v.GetString("script")
	if path := c.v.GetString("script-file"); path != "" {
		content, err := readScript(cmd.InOrStdin(), path)
		if err != nil {
			return nil, err
		}
		script = content
	}
	params[connector.ParamScript] = script

	// Only a separator that was given selects batch mode.
	if c.v.IsSet("separator") {
		params[connector.ParamSeparator] = c.v.GetString("separator")
	}

	if c.v.IsSet("max-rows") {
		params[connector.ParamMaxRows] = c.v.GetInt("max-rows")
	}

	params[connector.ParamOutputType] = c.v.GetString("output")
	params[connector.ParamDriver] = c.v.GetString("driver")
	params[connector.ParamURL] = c.v.GetString("url")
	params[connector.ParamUsername] = c.v.GetString("username")
	params[connector.ParamPassword] = c.v.GetString("password")

	properties, err := cmd.Flags().GetStringArray("property")
	if err != nil {
		return nil, err
	}
	if len(properties) == 0 {
		properties = c.v.GetStringSlice("property")
	}

	datasource := c.v.GetString("datasource")
	if datasource != "" || len(properties) > 0 {
		params[connector.ParamDataSource] = datasource
		params[connector.ParamProperties] = parseProperties(properties)
	}

	return params, nil
}

func readScript(stdin io.Reader, path string) (string, error) {
	var (
		content []byte
		err     error
	)

	if path == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}

	return string(content), nil
}

// parseProperties turns key=value entries into property rows. An entry
// without "=" is a key with no value.
func parseProperties(entries []string) [][]any {
	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		key, value, found := strings.Cut(entry, "=")
		if found {
			rows = append(rows, []any{key, value})
		} else {
			rows = append(rows, []any{key})
		}
	}
	return rows
}
