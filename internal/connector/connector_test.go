package connector

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibesql/sqlrun/internal/database"
	"github.com/vibesql/sqlrun/internal/naming"
	"github.com/vibesql/sqlrun/internal/shape"
)

// setupPeople creates a SQLite database with the two reference rows and
// returns its path.
func setupPeople(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "people.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE people (
			id INTEGER PRIMARY KEY,
			firstname TEXT,
			lastname TEXT,
			age INTEGER,
			average REAL
		)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO people VALUES (1, 'John', 'Doe', 27, 15.4), (2, 'Jane', 'Doe', 31, 15.9)`)
	require.NoError(t, err)

	return path
}

func driverParams(path string, script string, outputType string) Parameters {
	return Parameters{
		ParamDriver:     "sqlite3",
		ParamURL:        path,
		ParamScript:     script,
		ParamOutputType: outputType,
	}
}

func newTestConnector() *ScriptConnector {
	log, _ := test.NewNullLogger()
	return New(WithLogger(log))
}

// execute runs the lifecycle and returns the result of Execute.
func execute(t *testing.T, params Parameters) (Result, error) {
	t.Helper()

	var result Result
	err := Run(context.Background(), newTestConnector(), params, func(r Result) error {
		result = r
		return nil
	})
	return result, err
}

func countPeople(t *testing.T, path string) int64 {
	t.Helper()

	result, err := execute(t, driverParams(path, "SELECT COUNT(*) FROM people", "single"))
	require.NoError(t, err)
	return result[shape.SlotScalar].(int64)
}

func TestValidateInputParameters(t *testing.T) {
	tests := []struct {
		name     string
		params   Parameters
		contains []string
	}{
		{
			name:     "nil values",
			params:   Parameters{},
			contains: []string{"Url", "Driver", "Script"},
		},
		{
			name: "empty values",
			params: Parameters{
				ParamDriver: "",
				ParamURL:    "",
				ParamScript: "",
			},
			contains: []string{"Url", "Driver", "Script"},
		},
		{
			name: "empty datasource",
			params: Parameters{
				ParamDataSource: "",
				ParamProperties: [][]any{{"naming.factory.initial", "bound"}},
				ParamScript:     "SELECT 1",
			},
			contains: []string{"Datasource"},
		},
		{
			name:     "unsupported output type",
			params:   driverParams("x.db", "SELECT 1", "csv"),
			contains: []string{"Output type csv is not supported"},
		},
		{
			name: "negative max rows",
			params: Parameters{
				ParamDriver:  "sqlite3",
				ParamURL:     "x.db",
				ParamScript:  "SELECT 1",
				ParamMaxRows: -1,
			},
			contains: []string{"Max rows"},
		},
		{
			name: "undecodable value",
			params: Parameters{
				ParamDriver:  "sqlite3",
				ParamURL:     "x.db",
				ParamScript:  "SELECT 1",
				ParamMaxRows: "many",
			},
			contains: []string{"maxRows"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConnector()
			c.SetInputParameters(tt.params)

			err := c.ValidateInputParameters()
			require.ErrorIs(t, err, database.ErrValidation)

			var coded *database.Error
			require.True(t, errors.As(err, &coded))
			require.NotEmpty(t, coded.Messages)
			for _, want := range tt.contains {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidateInputParameters_Valid(t *testing.T) {
	c := newTestConnector()
	c.SetInputParameters(driverParams("people.db", "SELECT 1", ""))
	require.NoError(t, c.ValidateInputParameters())

	c.SetInputParameters(Parameters{ParamDataSource: "jdbc/people", ParamScript: "SELECT 1"})
	require.NoError(t, c.ValidateInputParameters())
}

func TestSetInputParameters_MasksPassword(t *testing.T) {
	log, hook := test.NewNullLogger()
	c := New(WithLogger(log))

	c.SetInputParameters(Parameters{
		ParamUsername: "admin",
		ParamPassword: "s3cr3t",
		ParamScript:   "SELECT 1",
	})

	require.NotEmpty(t, hook.AllEntries())
	masked := false
	for _, entry := range hook.AllEntries() {
		assert.NotContains(t, entry.Message, "s3cr3t")
		if entry.Message == "password ******" {
			masked = true
		}
	}
	assert.True(t, masked)
}

func TestSetInputParameters_MasksCredentials(t *testing.T) {
	tests := []struct {
		name     string
		params   Parameters
		secret   string
		expected string
	}{
		{
			name: "url userinfo",
			params: Parameters{
				ParamDriver: "postgres",
				ParamURL:    "postgres://app:hunter2@db/app",
			},
			secret:   "hunter2",
			expected: "url postgres://app:******@db/app",
		},
		{
			name: "url query password",
			params: Parameters{
				ParamDriver: "postgres",
				ParamURL:    "postgres://db/app?password=hunter2&sslmode=disable",
			},
			secret:   "hunter2",
			expected: "url postgres://db/app?password=******&sslmode=disable",
		},
		{
			name: "key value url",
			params: Parameters{
				ParamDriver: "postgres",
				ParamURL:    "host=db user=app password='hunter 2' dbname=app",
			},
			secret:   "hunter 2",
			expected: "url host=db user=app password=****** dbname=app",
		},
		{
			name: "property rows",
			params: Parameters{
				ParamDataSource: "app",
				ParamProperties: [][]any{
					{naming.FactoryProperty, naming.FactoryProperties},
					{"app.password", "s3cret"},
				},
			},
			secret:   "s3cret",
			expected: "properties [[naming.factory.initial properties] [app.password ******]]",
		},
		{
			name: "property rows from json",
			params: Parameters{
				ParamDataSource: "app",
				ParamProperties: []any{
					[]any{"app.password", "s3cret"},
				},
			},
			secret:   "s3cret",
			expected: "properties [[app.password ******]]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, hook := test.NewNullLogger()
			c := New(WithLogger(log))

			params := Parameters{ParamScript: "SELECT 1"}
			for k, v := range tt.params {
				params[k] = v
			}
			c.SetInputParameters(params)

			var messages []string
			for _, entry := range hook.AllEntries() {
				assert.NotContains(t, entry.Message, tt.secret)
				messages = append(messages, entry.Message)
			}
			assert.Contains(t, messages, tt.expected)
		})
	}
}

func TestScalarMode(t *testing.T) {
	path := setupPeople(t)

	tests := []struct {
		script   string
		expected any
	}{
		{"SELECT COUNT(*) FROM people", int64(2)},
		{"SELECT AVG(age) FROM people", float64(29)},
		{"SELECT age FROM people WHERE age=65", nil},
		{"select firstname from people order by id", "John"},
	}

	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			result, err := execute(t, driverParams(path, tt.script, "single"))
			require.NoError(t, err)
			require.Contains(t, result, shape.SlotScalar)
			assert.Equal(t, tt.expected, result[shape.SlotScalar])
			assert.Len(t, result, 1)
		})
	}

	_, err := execute(t, driverParams(path, "SELECT firstname, lastname FROM people WHERE id = 1", "single"))
	require.ErrorIs(t, err, database.ErrShape)
}

func TestSingleRowMode(t *testing.T) {
	path := setupPeople(t)

	result, err := execute(t, driverParams(path, "SELECT * FROM people WHERE id = 2", "one_row"))
	require.NoError(t, err)
	assert.Equal(t, shape.Row{int64(2), "Jane", "Doe", int64(31), 15.9}, result[shape.SlotSingleRow])

	result, err = execute(t, driverParams(path, "SELECT * FROM people WHERE id = 99", "one_row"))
	require.NoError(t, err)
	assert.Equal(t, shape.Row{}, result[shape.SlotSingleRow])

	_, err = execute(t, driverParams(path, "SELECT * FROM people", "one_row"))
	require.ErrorIs(t, err, database.ErrShape)
}

func TestMultiRowMode(t *testing.T) {
	path := setupPeople(t)

	result, err := execute(t, driverParams(path, "SELECT firstname FROM people ORDER BY id", "n_row"))
	require.NoError(t, err)
	assert.Equal(t, []any{"John", "Jane"}, result[shape.SlotMultiRow])

	result, err = execute(t, driverParams(path, "SELECT firstname FROM people WHERE age > 90", "n_row"))
	require.NoError(t, err)
	assert.Equal(t, []any{}, result[shape.SlotMultiRow])

	_, err = execute(t, driverParams(path, "SELECT firstname, age FROM people WHERE age > 90", "n_row"))
	require.ErrorIs(t, err, database.ErrShape)
}

func TestTableMode(t *testing.T) {
	path := setupPeople(t)

	result, err := execute(t, driverParams(path, "SELECT * FROM people ORDER BY id", "table"))
	require.NoError(t, err)
	assert.Equal(t, shape.Rows{
		{int64(1), "John", "Doe", int64(27), 15.4},
		{int64(2), "Jane", "Doe", int64(31), 15.9},
	}, result[shape.SlotTable])

	result, err = execute(t, driverParams(path, "SELECT firstname, lastname FROM people WHERE id = 1", "table"))
	require.NoError(t, err)
	assert.Equal(t, shape.Rows{{"John", "Doe"}}, result[shape.SlotTable])
}

func TestMaxRows(t *testing.T) {
	path := setupPeople(t)

	params := driverParams(path, "SELECT * FROM people", "table")
	params[ParamMaxRows] = 1

	_, err := execute(t, params)
	require.ErrorIs(t, err, database.ErrResultTooLarge)
}

func TestInsertThenSelect(t *testing.T) {
	path := setupPeople(t)

	result, err := execute(t, driverParams(path,
		"INSERT INTO people (firstname, age, lastname, average) VALUES ('Arthur', 25, 'Doe', 17.0)", "table"))
	require.NoError(t, err)
	assert.Equal(t, Result{shape.SlotResultSet: nil}, result)

	result, err = execute(t, driverParams(path, "SELECT firstname, lastname, age, average FROM people WHERE firstname='Arthur'", "table"))
	require.NoError(t, err)
	assert.Equal(t, shape.Rows{{"Arthur", "Doe", int64(25), 17.0}}, result[shape.SlotTable])
}

func TestNonSelectUnderShapedMode(t *testing.T) {
	path := setupPeople(t)

	for _, mode := range []string{"", "single", "one_row", "n_row", "table"} {
		t.Run(mode, func(t *testing.T) {
			result, err := execute(t, driverParams(path, "UPDATE people SET age = 28 WHERE id = 1", mode))
			require.NoError(t, err)
			require.Contains(t, result, shape.SlotResultSet)
			assert.Nil(t, result[shape.SlotResultSet])
			assert.Len(t, result, 1)
		})
	}
}

func TestRawCursorMode(t *testing.T) {
	path := setupPeople(t)

	c := newTestConnector()
	c.SetInputParameters(driverParams(path, "SELECT * FROM people ORDER BY id", ""))
	require.NoError(t, c.ValidateInputParameters())
	require.NoError(t, c.Connect(context.Background()))

	result, err := c.Execute(context.Background())
	require.NoError(t, err)

	cursor, ok := result.Cursor()
	require.True(t, ok)
	rows, ok := cursor.(*sql.Rows)
	require.True(t, ok)

	var names []string
	for rows.Next() {
		var (
			id      int64
			first   string
			last    string
			age     int64
			average float64
		)
		require.NoError(t, rows.Scan(&id, &first, &last, &age, &average))
		names = append(names, first)
	}
	assert.Equal(t, []string{"John", "Jane"}, names)

	require.NoError(t, c.Disconnect())
}

func TestRawCursorClosedByDisconnect(t *testing.T) {
	path := setupPeople(t)

	c := newTestConnector()
	c.SetInputParameters(driverParams(path, "SELECT * FROM people", "resultset"))
	require.NoError(t, c.Connect(context.Background()))

	result, err := c.Execute(context.Background())
	require.NoError(t, err)

	rows := result[shape.SlotResultSet].(*sql.Rows)
	require.NoError(t, c.Disconnect())
	assert.False(t, rows.Next(), "cursor must be released with the session")
}

func TestSecondCursorRejected(t *testing.T) {
	path := setupPeople(t)

	c := newTestConnector()
	c.SetInputParameters(driverParams(path, "SELECT * FROM people", ""))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	_, err := c.Execute(context.Background())
	require.NoError(t, err)

	_, err = c.Execute(context.Background())
	require.ErrorIs(t, err, database.ErrQuery)
	assert.Contains(t, err.Error(), "cursor is already open")
}

func TestShapedModeReleasesCursor(t *testing.T) {
	path := setupPeople(t)

	c := newTestConnector()
	c.SetInputParameters(driverParams(path, "SELECT COUNT(*) FROM people", "single"))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	for i := 0; i < 2; i++ {
		result, err := c.Execute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), result[shape.SlotScalar])
	}
}

func TestBatch(t *testing.T) {
	path := setupPeople(t)

	params := driverParams(path, `
		INSERT INTO people (firstname, lastname, age, average) VALUES ('Elias', 'Doe', 25, 17);
		INSERT INTO people (firstname, lastname, age, average) VALUES ('Fred', 'Da', 28, 18);
		UPDATE people SET age = 30 WHERE firstname = 'Fred';
	`, "")
	params[ParamSeparator] = ";"

	result, err := execute(t, params)
	require.NoError(t, err)
	assert.Nil(t, result, "batch produces no result")
	assert.Equal(t, int64(4), countPeople(t, path))

	check, err := execute(t, driverParams(path, "SELECT age FROM people WHERE firstname = 'Fred'", "single"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), check[shape.SlotScalar])
}

func TestBatchIsAtomic(t *testing.T) {
	path := setupPeople(t)

	params := driverParams(path,
		"INSERT INTO people (firstname) VALUES ('Ghost');INSERT INTO missing_table VALUES (1);", "")
	params[ParamSeparator] = ";"

	_, err := execute(t, params)
	require.ErrorIs(t, err, database.ErrQuery)
	assert.Contains(t, err.Error(), "statement 2 of 2")

	assert.Equal(t, int64(2), countPeople(t, path), "nothing from a failed batch is committed")
}

func TestDispatch(t *testing.T) {
	path := setupPeople(t)

	t.Run("separator configured but absent runs single", func(t *testing.T) {
		params := driverParams(path, "SELECT COUNT(*) FROM people", "single")
		params[ParamSeparator] = ";"

		result, err := execute(t, params)
		require.NoError(t, err)
		assert.Equal(t, int64(2), result[shape.SlotScalar])
	})

	t.Run("separator present runs batch", func(t *testing.T) {
		params := driverParams(path, "DELETE FROM people WHERE id = 1|DELETE FROM people WHERE id = 2", "single")
		params[ParamSeparator] = "|"

		result, err := execute(t, params)
		require.NoError(t, err)
		assert.Nil(t, result)
		assert.Equal(t, int64(0), countPeople(t, path))
	})
}

func TestWrongTableQuery(t *testing.T) {
	path := setupPeople(t)

	_, err := execute(t, driverParams(path, "SELECT * FROM Bonita", "table"))
	require.ErrorIs(t, err, database.ErrQuery)
}

func TestConnectTwice(t *testing.T) {
	path := setupPeople(t)

	c := newTestConnector()
	c.SetInputParameters(driverParams(path, "SELECT COUNT(*) FROM people", "single"))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, database.ErrConnection)
	assert.Contains(t, err.Error(), "already connected")

	// The first session is still the live one.
	result, err := c.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result[shape.SlotScalar])
}

func TestConnectFailure(t *testing.T) {
	c := newTestConnector()
	c.SetInputParameters(Parameters{
		ParamDriver: "com.example.NoSuchDriver",
		ParamURL:    "jdbc:nothing",
		ParamScript: "SELECT 1",
	})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, database.ErrConnection)

	_, err = c.Execute(context.Background())
	require.ErrorIs(t, err, database.ErrConnection)

	assert.NoError(t, c.Disconnect(), "nothing to release after a failed connect")
}

func TestConnectValidatesFirst(t *testing.T) {
	c := newTestConnector()
	c.SetInputParameters(Parameters{})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, database.ErrValidation)
}

func TestDisconnectWithoutConnect(t *testing.T) {
	c := newTestConnector()
	assert.NoError(t, c.Disconnect())
	assert.NoError(t, c.Disconnect())
}

func TestResourceMode_Bound(t *testing.T) {
	path := setupPeople(t)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	naming.Bind("jdbc/connector-test", db)
	defer naming.Unbind("jdbc/connector-test")

	result, err := execute(t, Parameters{
		ParamDataSource: "jdbc/connector-test",
		ParamScript:     "SELECT firstname FROM people ORDER BY id",
		ParamOutputType: "n_row",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"John", "Jane"}, result[shape.SlotMultiRow])

	// The bound pool outlives the connector.
	require.NoError(t, db.Ping())
}

func TestResourceMode_Properties(t *testing.T) {
	path := setupPeople(t)

	result, err := execute(t, Parameters{
		ParamDataSource: "jdbc/people",
		ParamProperties: [][]any{
			{naming.FactoryProperty, naming.FactoryProperties},
			{"jdbc/people.driver", "sqlite3"},
			{"jdbc/people.url", path},
			{"ignored"},
			{"a", "b", "c"},
		},
		ParamScript:     "SELECT COUNT(*) FROM people",
		ParamOutputType: "single",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result[shape.SlotScalar])
}

func TestResourceMode_UnknownName(t *testing.T) {
	c := newTestConnector()
	c.SetInputParameters(Parameters{
		ParamDataSource: "jdbc/nowhere",
		ParamScript:     "SELECT 1",
	})

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, database.ErrConnection)

	var notFound *naming.NameNotFoundError
	assert.True(t, errors.As(err, &notFound))
	assert.NoError(t, c.Disconnect())
}

func TestDecodeParameters(t *testing.T) {
	cfg, err := DecodeParameters(Parameters{
		ParamScript:     "SELECT 1",
		ParamSeparator:  ";",
		ParamOutputType: "table",
		ParamDriver:     "postgres",
		ParamURL:        "postgres://db/app",
		ParamUsername:   "app",
		ParamMaxRows:    "10",
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1", cfg.Script)
	assert.True(t, cfg.HasSeparator)
	assert.Equal(t, ";", cfg.Separator)
	assert.Equal(t, shape.Table, cfg.OutputMode)
	assert.Equal(t, 10, cfg.MaxRows)
	assert.Equal(t, DriverDescriptor{Driver: "postgres", URL: "postgres://db/app", Username: "app"}, cfg.Descriptor)

	cfg, err = DecodeParameters(Parameters{
		ParamScript:     "SELECT 1",
		ParamDataSource: "jdbc/app",
		ParamProperties: []any{[]any{"k", "v"}, []any{"empty"}, []any{"n", 3}},
	})
	require.NoError(t, err)
	assert.False(t, cfg.HasSeparator)
	assert.Equal(t, ResourceDescriptor{
		Name: "jdbc/app",
		Properties: naming.Environment{
			{Key: "k", Value: "v"},
			{Key: "empty"},
			{Key: "n", Value: "3"},
		},
	}, cfg.Descriptor)
}

func TestNewDefaultsLogger(t *testing.T) {
	c := New()
	require.NotNil(t, c.log)
	assert.NoError(t, c.Disconnect())
}

func TestRun_HandlerError(t *testing.T) {
	path := setupPeople(t)

	handlerErr := errors.New("render failed")
	err := Run(context.Background(), newTestConnector(), driverParams(path, "SELECT 1", ""), func(r Result) error {
		_, ok := r.Cursor()
		assert.True(t, ok)
		return handlerErr
	})
	require.ErrorIs(t, err, handlerErr)
}

func TestResultCursor(t *testing.T) {
	_, ok := Result{shape.SlotResultSet: nil}.Cursor()
	assert.False(t, ok)

	_, ok = Result{shape.SlotScalar: int64(1)}.Cursor()
	assert.False(t, ok)

}
