// Package chat runs one question through schema resolution, intent
// classification and either a schema answer or the generate, clean, validate
// and execute pipeline.
package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JonMunkholm/WebDbChat/internal/engine"
	apperrors "github.com/JonMunkholm/WebDbChat/internal/errors"
	"github.com/JonMunkholm/WebDbChat/internal/llm"
	"github.com/JonMunkholm/WebDbChat/internal/logging"
	"github.com/JonMunkholm/WebDbChat/internal/metrics"
	"github.com/JonMunkholm/WebDbChat/internal/query"
	"github.com/JonMunkholm/WebDbChat/internal/schema"
	"github.com/JonMunkholm/WebDbChat/internal/sqlsafe"
)

// State is a step of a chat turn.
type State string

const (
	StateReceived         State = "received"
	StateSchemaResolved   State = "schema_resolved"
	StateIntentClassified State = "intent_classified"
	StateSchemaAnswered   State = "schema_answered"
	StateSQLGenerated     State = "sql_generated"
	StateSQLCleaned       State = "sql_cleaned"
	StateSQLValidated     State = "sql_validated"
	StateExecuted         State = "executed"
	StateResponded        State = "responded"
	StateErrored          State = "errored"
)

// Turn is one question against one connection. Credentials are already decrypted.
type Turn struct {
	ConnectionID string
	Connection   engine.Config
	Question     string
}

// Result is the only value that leaves the service. It is always JSON-serializable.
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	SQL       string         `json:"sql"`
	Result    *query.Result  `json:"result,omitempty"`
	ErrorKind apperrors.Kind `json:"errorKind,omitempty"`
	TurnID    string         `json:"turnId"`
}

// SchemaResolver returns a usable snapshot for a connection.
type SchemaResolver interface {
	Resolve(ctx context.Context, key string, cfg engine.Config) (schema.Snapshot, error)
}

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Executor runs a validated statement.
type Executor interface {
	Execute(ctx context.Context, cfg engine.Config, stmt sqlsafe.Statement, limits query.Limits) (query.Result, error)
}

// Config tunes the data pipeline.
type Config struct {
	Limits      query.Limits
	StrictClean bool
}

type Service struct {
	schemas  SchemaResolver
	gen      Generator
	executor Executor
	cfg      Config
	logger   *zap.Logger
}

func NewService(schemas SchemaResolver, gen Generator, executor Executor, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		schemas:  schemas,
		gen:      gen,
		executor: executor,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
}

type turnState struct {
	id     string
	state  State
	sql    string
	logger *zap.Logger
}

func (t *turnState) enter(state State, fields ...zap.Field) {
	t.state = state
	t.logger.Debug("turn state", append([]zap.Field{zap.String("state", string(state))}, fields...)...)
}

// Handle answers one turn. Every failure is converted into an unsuccessful
// Result carrying user-safe text; raw causes are only logged.
func (s *Service) Handle(ctx context.Context, turn Turn) Result {
	id := uuid.NewString()
	t := &turnState{
		id: id,
		logger: s.logger.With(
			zap.String("turn_id", id),
			zap.String("connection", turn.ConnectionID),
			zap.String("engine", string(turn.Connection.Kind))),
	}
	t.enter(StateReceived)

	question := strings.TrimSpace(turn.Question)
	if question == "" {
		return s.fail(t, apperrors.New(apperrors.KindInvalidInput, "Please enter a question."))
	}

	snap, err := s.schemas.Resolve(ctx, turn.ConnectionID, turn.Connection)
	if err != nil {
		return s.fail(t, err)
	}
	t.enter(StateSchemaResolved, zap.Int("tables", snap.TableCount()))

	intent := Classify(question, snap)
	t.enter(StateIntentClassified, zap.String("intent", string(intent.Kind)))

	switch intent.Kind {
	case IntentListTables:
		return s.respond(t, listTables(snap))
	case IntentDescribeTable:
		res, err := describeTable(snap, intent.Table)
		if err != nil {
			return s.fail(t, err)
		}
		return s.respond(t, res)
	}
	return s.answerData(ctx, t, turn.Connection, question, snap)
}

func (s *Service) answerData(ctx context.Context, t *turnState, cfg engine.Config, question string, snap schema.Snapshot) Result {
	validator := sqlsafe.NewValidator(cfg.Kind)
	prompt := llm.BuildPrompt(cfg.Kind.Dialect(), schema.Format(snap), question, validator.AllowedFunctions())
	raw, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		return s.fail(t, err)
	}
	if reason, ok := llm.ParseMissing(raw); ok {
		if reason == "" {
			reason = "the schema has no matching data"
		}
		return s.fail(t, apperrors.New(apperrors.KindNotAnswerable, reason))
	}
	t.enter(StateSQLGenerated, zap.Int("raw_len", len(raw)))

	cleaned, err := sqlsafe.Cleaner{Strict: s.cfg.StrictClean}.Clean(raw)
	if err != nil {
		return s.fail(t, err)
	}
	t.sql = cleaned
	t.enter(StateSQLCleaned, zap.String("sql", cleaned))

	stmt, err := validator.Validate(cleaned)
	if err != nil {
		metrics.ObserveRejection(apperrors.ReasonOf(err))
		return s.fail(t, err)
	}
	t.enter(StateSQLValidated)

	res, err := s.executor.Execute(ctx, cfg, stmt, s.cfg.Limits)
	if err != nil {
		return s.fail(t, err)
	}
	if err := res.Check(); err != nil {
		return s.fail(t, apperrors.Wrap(err, apperrors.KindInternal, "result is not serializable"))
	}
	t.enter(StateExecuted, zap.Int("rows", res.RowCount), zap.Bool("truncated", res.Truncated))

	return s.respond(t, Result{
		Success: true,
		Message: sqlsafe.Explain(stmt) + " " + rowSummary(res),
		SQL:     stmt.String(),
		Result:  &res,
	})
}

func (s *Service) respond(t *turnState, res Result) Result {
	if t.state == StateIntentClassified {
		t.enter(StateSchemaAnswered)
		metrics.ObserveTurn("schema_answer")
	} else {
		metrics.ObserveTurn("ok")
	}
	res.TurnID = t.id
	t.enter(StateResponded)
	return res
}

func (s *Service) fail(t *turnState, err error) Result {
	kind := apperrors.KindOf(err)
	t.logger.Warn("chat turn failed",
		zap.String("state", string(t.state)),
		zap.String("kind", string(kind)),
		zap.Error(err))
	t.enter(StateErrored)
	metrics.ObserveTurn(string(kind))
	return Result{
		Success:   false,
		Message:   apperrors.UserMessage(err),
		SQL:       t.sql,
		ErrorKind: kind,
		TurnID:    t.id,
	}
}

func listTables(snap schema.Snapshot) Result {
	names := snap.TableNames()
	rows := make([][]query.Value, len(names))
	for i, n := range names {
		rows[i] = []query.Value{query.TextValue(n)}
	}
	res := query.NewResult([]string{"table_name"}, rows)

	noun := "tables"
	if len(names) == 1 {
		noun = "table"
	}
	return Result{
		Success: true,
		Message: "The database contains " + strconv.Itoa(len(names)) + " " + noun + ": " + strings.Join(names, ", ") + ".",
		Result:  &res,
	}
}

func describeTable(snap schema.Snapshot, name string) (Result, error) {
	text, ok := schema.DescribeTable(schema.Format(snap), name)
	table, found := snap.Table(name)
	if !ok || !found {
		return Result{}, apperrors.Newf(apperrors.KindSchemaUnavailable, "Table %s was not found in the schema", name)
	}

	rows := make([][]query.Value, len(table.Columns))
	for i, c := range table.Columns {
		rows[i] = []query.Value{
			query.TextValue(c.Name),
			query.TextValue(c.Type),
			query.BoolValue(c.Nullable),
			query.BoolValue(c.IsPrimaryKey),
			query.BoolValue(c.IsForeignKey),
		}
	}
	res := query.NewResult([]string{"column_name", "data_type", "nullable", "primary_key", "foreign_key"}, rows)
	return Result{Success: true, Message: text, Result: &res}, nil
}

func rowSummary(res query.Result) string {
	switch {
	case res.RowCount == 0:
		return "No matching records found."
	case res.Truncated:
		return "Showing the first " + strconv.Itoa(res.RowCount) + " results; more rows matched."
	case res.RowCount == 1:
		return "Found 1 result."
	default:
		return "Found " + strconv.Itoa(res.RowCount) + " results."
	}
}
