package connector

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/vibesql/sqlrun/internal/naming"
	"github.com/vibesql/sqlrun/internal/shape"
)

// Input parameter names
const (
	ParamScript     = "script"
	ParamSeparator  = "separator"
	ParamOutputType = "outputType"
	ParamDriver     = "driver"
	ParamURL        = "url"
	ParamUsername   = "username"
	ParamPassword   = "password"
	ParamDataSource = "dataSourceName"
	ParamProperties = "properties"
	ParamMaxRows    = "maxRows"
)

// Parameters is the input map handed over by the host.
type Parameters map[string]any

// Descriptor identifies how a session is acquired. It is either a
// DriverDescriptor or a ResourceDescriptor.
type Descriptor interface {
	descriptor()
}

// DriverDescriptor opens a dedicated connection through a driver.
type DriverDescriptor struct {
	Driver   string
	URL      string
	Username string
	Password string
}

// ResourceDescriptor resolves a pooled data source through a naming context.
type ResourceDescriptor struct {
	Name       string
	Properties naming.Environment
}

func (DriverDescriptor) descriptor()   {}
func (ResourceDescriptor) descriptor() {}

// Config is the decoded form of Parameters.
type Config struct {
	Script       string
	Separator    string
	HasSeparator bool
	OutputType   string
	OutputMode   shape.OutputMode
	MaxRows      int
	Descriptor   Descriptor
}

type rawParameters struct {
	Script         string  `mapstructure:"script"`
	Separator      *string `mapstructure:"separator"`
	OutputType     string  `mapstructure:"outputType"`
	Driver         string  `mapstructure:"driver"`
	URL            string  `mapstructure:"url"`
	Username       string  `mapstructure:"username"`
	Password       string  `mapstructure:"password"`
	DataSourceName string  `mapstructure:"dataSourceName"`
	Properties     [][]any `mapstructure:"properties"`
	MaxRows        int     `mapstructure:"maxRows"`
}

// DecodeParameters decodes a host parameter map. An unknown output type is
// kept as given and reported by Validate.
func DecodeParameters(params Parameters) (*Config, error) {
	var raw rawParameters

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &raw,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(map[string]any(params)); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	cfg := &Config{
		Script:     raw.Script,
		OutputType: raw.OutputType,
		MaxRows:    raw.MaxRows,
	}

	if raw.Separator != nil {
		cfg.Separator = *raw.Separator
		cfg.HasSeparator = true
	}

	mode, err := shape.ParseOutputMode(raw.OutputType)
	if err == nil {
		cfg.OutputMode = mode
	}

	_, hasProperties := params[ParamProperties]
	if raw.DataSourceName != "" || (hasProperties && raw.Properties != nil) {
		cfg.Descriptor = ResourceDescriptor{
			Name:       raw.DataSourceName,
			Properties: toEnvironment(raw.Properties),
		}
	} else {
		// An empty password means an anonymous connection.
		cfg.Descriptor = DriverDescriptor{
			Driver:   raw.Driver,
			URL:      raw.URL,
			Username: raw.Username,
			Password: raw.Password,
		}
	}

	return cfg, nil
}

// toEnvironment converts host property rows. A one element row is a key
// without value, a two element row a key and value; other rows are ignored.
func toEnvironment(rows [][]any) naming.Environment {
	env := make(naming.Environment, 0, len(rows))
	for _, row := range rows {
		switch len(row) {
		case 1:
			env = append(env, naming.Property{Key: stringify(row[0])})
		case 2:
			env = append(env, naming.Property{Key: stringify(row[0]), Value: stringify(row[1])})
		}
	}
	return env
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Validate returns one message per missing or invalid field.
func (c *Config) Validate() []string {
	var messages []string

	switch d := c.Descriptor.(type) {
	case ResourceDescriptor:
		if strings.TrimSpace(d.Name) == "" {
			messages = append(messages, "Datasource can't be empty")
		}
	case DriverDescriptor:
		if strings.TrimSpace(d.URL) == "" {
			messages = append(messages, "Url can't be empty")
		}
		if strings.TrimSpace(d.Driver) == "" {
			messages = append(messages, "Driver is not set")
		}
	}

	if strings.TrimSpace(c.Script) == "" {
		messages = append(messages, "Script is not set")
	}

	if _, err := shape.ParseOutputMode(c.OutputType); err != nil {
		messages = append(messages, fmt.Sprintf("Output type %s is not supported", c.OutputType))
	}

	if c.MaxRows < 0 {
		messages = append(messages, "Max rows can't be negative")
	}

	return messages
}
