// Package connector runs a SQL script against a database for a host that
// drives it through the Connector lifecycle: set parameters, validate,
// connect, execute, disconnect.
package connector

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/vibesql/sqlrun/internal/database"
	"github.com/vibesql/sqlrun/internal/naming"
	"github.com/vibesql/sqlrun/internal/script"
	"github.com/vibesql/sqlrun/internal/shape"
)

// Connector is the lifecycle a host drives, in this order. Disconnect must
// be called once after every successful Connect, including when Execute
// failed.
type Connector interface {
	SetInputParameters(params Parameters)
	ValidateInputParameters() error
	Connect(ctx context.Context) error
	Execute(ctx context.Context) (Result, error)
	Disconnect() error
}

// Ensure ScriptConnector implements Connector
var _ Connector = (*ScriptConnector)(nil)

// Result maps output slots to values. A SELECT fills the slot of the
// configured output mode; any other single statement fills the resultset
// slot with nil. A batch returns a nil Result.
type Result map[string]any

// Cursor returns the raw cursor stored in the resultset slot, if any. The
// cursor stays valid until Disconnect.
func (r Result) Cursor() (shape.Cursor, bool) {
	cursor, ok := r[shape.SlotResultSet].(shape.Cursor)
	return cursor, ok && cursor != nil
}

type state int

const (
	stateConfigured state = iota
	stateConnected
	stateDisconnected
)

// ScriptConnector executes one script over one exclusively owned session.
// It is not safe for concurrent use.
type ScriptConnector struct {
	log       logrus.FieldLogger
	params    Parameters
	config    *Config
	decodeErr error
	validated bool
	state     state
	session   *database.Session
}

// Option configures a ScriptConnector.
type Option func(*ScriptConnector)

// WithLogger sets the logger used by the connector and its session.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *ScriptConnector) {
		c.log = log
	}
}

// New creates a connector in the configured state.
func New(opts ...Option) *ScriptConnector {
	c := &ScriptConnector{}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = logrus.New()
	}

	return c
}

// SetInputParameters stores params. It never fails; decoding problems are
// reported by ValidateInputParameters.
func (c *ScriptConnector) SetInputParameters(params Parameters) {
	c.params = params
	c.validated = false
	c.config, c.decodeErr = DecodeParameters(params)

	for _, key := range []string{
		ParamScript, ParamSeparator, ParamOutputType, ParamDriver, ParamURL,
		ParamUsername, ParamPassword, ParamDataSource, ParamProperties, ParamMaxRows,
	} {
		value, ok := params[key]
		if !ok {
			continue
		}
		c.log.Infof("%s %v", key, redactParameter(key, value))
	}
}

// ValidateInputParameters checks that the script and the connection target
// are set. All problems are reported together.
func (c *ScriptConnector) ValidateInputParameters() error {
	if c.decodeErr != nil {
		return database.NewValidationError([]string{c.decodeErr.Error()})
	}

	if c.config == nil {
		c.config, c.decodeErr = DecodeParameters(c.params)
		if c.decodeErr != nil {
			return database.NewValidationError([]string{c.decodeErr.Error()})
		}
	}

	messages := c.config.Validate()
	if len(messages) > 0 {
		return database.NewValidationError(messages)
	}

	c.validated = true
	return nil
}

// Connect acquires the session. Connecting an already connected connector
// fails and keeps the existing session.
func (c *ScriptConnector) Connect(ctx context.Context) error {
	if c.state == stateConnected {
		return database.NewError(database.ErrorCodeConnection, "Connector is already connected", "")
	}

	if !c.validated {
		if err := c.ValidateInputParameters(); err != nil {
			return err
		}
	}

	var (
		session *database.Session
		err     error
	)

	switch d := c.config.Descriptor.(type) {
	case DriverDescriptor:
		session, err = database.OpenDriver(ctx, database.DriverConfig{
			Driver:   d.Driver,
			URL:      d.URL,
			Username: d.Username,
			Password: d.Password,
		}, c.log)
	case ResourceDescriptor:
		var nctx naming.Context
		nctx, err = naming.InitialContext(d.Properties)
		if err != nil {
			return database.NewConnectionError("Failed to create naming context", err)
		}
		session, err = database.OpenResource(ctx, nctx, d.Name, c.log)
	default:
		return database.NewError(database.ErrorCodeConnection, "No connection descriptor configured", "")
	}

	if err != nil {
		c.log.Errorf("Connect failed: %v", err)
		return err
	}

	c.session = session
	c.state = stateConnected
	return nil
}

// Execute runs the script. A configured separator that occurs in the script
// selects batch execution inside one transaction. Otherwise, including when a
// separator is configured but absent from the script, the script runs as a
// single statement outside any transaction.
func (c *ScriptConnector) Execute(ctx context.Context) (Result, error) {
	if c.state != stateConnected || c.session == nil {
		return nil, database.NewError(database.ErrorCodeConnection, "Connector is not connected", "")
	}

	if script.IsBatch(c.config.Script, c.config.Separator, c.config.HasSeparator) {
		return nil, c.executeBatch(ctx)
	}

	return c.executeSingle(ctx)
}

func (c *ScriptConnector) executeSingle(ctx context.Context) (Result, error) {
	if !script.IsSelect(c.config.Script) {
		affected, err := c.session.Exec(ctx, c.config.Script)
		if err != nil {
			return nil, err
		}

		c.log.WithField("rows_affected", affected).Info("Statement executed")
		return Result{shape.SlotResultSet: nil}, nil
	}

	rows, err := c.session.Query(ctx, c.config.Script)
	if err != nil {
		return nil, err
	}

	mode := c.config.OutputMode
	value, err := shape.Shape(rows, mode, shape.WithMaxRows(c.config.MaxRows))
	if mode != shape.RawCursor {
		// The shaper closed it; detach it from the session.
		_ = c.session.CloseCursor()
	}
	if err != nil {
		return nil, err
	}

	c.log.WithField("mode", mode.String()).Info("Query executed")

	return Result{mode.Slot(): value}, nil
}

func (c *ScriptConnector) executeBatch(ctx context.Context) error {
	statements := script.Split(c.config.Script, c.config.Separator)

	if err := c.session.ExecBatch(ctx, statements); err != nil {
		return err
	}

	c.log.WithField("statements", len(statements)).Info("Batch executed")
	return nil
}

// Disconnect releases any open cursor and the session. It is safe to call
// when Connect failed or was never called.
func (c *ScriptConnector) Disconnect() error {
	session := c.session
	c.session = nil
	c.state = stateDisconnected

	if session == nil {
		return nil
	}

	return session.Close()
}

// Run drives the whole lifecycle of c for params. handle sees the result
// while the session is still open, so a raw cursor can be consumed there.
func Run(ctx context.Context, c Connector, params Parameters, handle func(Result) error) (err error) {
	c.SetInputParameters(params)

	if err := c.ValidateInputParameters(); err != nil {
		return err
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if disconnectErr := c.Disconnect(); disconnectErr != nil && err == nil {
			err = disconnectErr
		}
	}()

	result, err := c.Execute(ctx)
	if err != nil {
		return err
	}

	if handle != nil {
		return handle(result)
	}

	return nil
}
