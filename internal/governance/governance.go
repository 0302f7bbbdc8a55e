// Package governance implements the Omega middleware: a four-step pipeline
// (pre-check, schema validation, write, post-verify) wrapping every
// externally visible hub action.
package governance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/emergent-company/memoryhub/internal/config"
	"github.com/emergent-company/memoryhub/internal/notebook"
	"github.com/emergent-company/memoryhub/internal/taxonomy"
)

// LogRecord is the candidate record governance validates and persists.
// Tags are enforced by Schema when ValidateSchema is enabled.
type LogRecord struct {
	Timestamp string         `validate:"required"`
	Type      string         `validate:"required"`
	Source    string         `validate:"required"`
	Action    string         `validate:"required"`
	Metadata  map[string]any `validate:"-"`
	Context   map[string]any `validate:"-"`
	Changes   map[string]any `validate:"-"`
	Result    map[string]any `validate:"-"`
	Artifacts []string       `validate:"-"`
}

var strictRFC3339 = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z$`)

// Middleware implements the pre-check/validate/write/post-verify pipeline.
type Middleware struct {
	cfg      config.GovernanceConfig
	vault    *notebook.Vault
	version  string
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a Middleware bound to the given notebook vault.
func New(cfg config.GovernanceConfig, vault *notebook.Vault, version string, logger *slog.Logger) *Middleware {
	return &Middleware{
		cfg:      cfg,
		vault:    vault,
		version:  version,
		logger:   logger,
		validate: validator.New(),
	}
}

// Guard wraps fn with the governance pipeline for a single record, invoking
// fn only if pre-check and schema validation pass. Once fn returns, whether
// or not it failed, it emits a post-verify record with action+"_result" and
// fn's summarized outcome; a failure to persist that record is only logged.
func (m *Middleware) Guard(record LogRecord, fn func() (any, error)) (any, error) {
	if err := m.preCheck(); err != nil {
		return nil, err
	}
	if err := m.validateSchema(record); err != nil {
		return nil, err
	}
	if err := m.write(record); err != nil {
		return nil, err
	}

	result, err := fn()

	verifyRecord := record
	verifyRecord.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	verifyRecord.Action = record.Action + "_result"
	verifyRecord.Result = summarize(result, err)
	if verifyErr := m.write(verifyRecord); verifyErr != nil {
		m.logger.Warn("post-verify record failed to persist", "action", record.Action, "error", verifyErr)
	}

	return result, err
}

// Record runs the pre-check, schema-validation and write steps for a single
// record with no wrapped action. Transport hooks use this to persist
// http_request records synthesized from method/path/status.
func (m *Middleware) Record(record LogRecord) error {
	if err := m.preCheck(); err != nil {
		return err
	}
	if err := m.validateSchema(record); err != nil {
		return err
	}
	return m.write(record)
}

// preCheck verifies the vault root is writable. When BlockOnFailure is true
// (default) a failed check short-circuits the action with GovernanceBlocked;
// otherwise a warning is logged and the pipeline continues.
func (m *Middleware) preCheck() error {
	if err := m.vault.EnsureWritable(); err != nil {
		if m.cfg.BlockOnFailure {
			return taxonomy.Wrap(taxonomy.GovernanceBlocked, "notebook vault is not writable", err)
		}
		m.logger.Warn("vault pre-check failed but block_on_failure is disabled", "error", err)
	}
	return nil
}

// validateSchema enforces the required-field and strict-RFC3339 rules,
// gated by the individual require_* and iso8601_strict knobs plus the
// overall validate_schema switch.
func (m *Middleware) validateSchema(record LogRecord) error {
	if !m.cfg.ValidateSchema {
		return nil
	}

	if err := m.validate.Struct(record); err != nil {
		return taxonomy.Wrap(taxonomy.GovernanceInvalidFormat, "log record missing required fields", err)
	}

	if m.cfg.RequireTimestamp && record.Timestamp == "" {
		return taxonomy.New(taxonomy.GovernanceInvalidFormat, "timestamp is required")
	}
	if m.cfg.RequireSource && record.Source == "" {
		return taxonomy.New(taxonomy.GovernanceInvalidFormat, "source is required")
	}
	if m.cfg.RequireAction && record.Action == "" {
		return taxonomy.New(taxonomy.GovernanceInvalidFormat, "action is required")
	}

	if m.cfg.ISO8601Strict {
		if !strictRFC3339.MatchString(record.Timestamp) {
			return taxonomy.New(taxonomy.GovernanceInvalidFormat, "timestamp must be strict RFC-3339 UTC (YYYY-MM-DDTHH:MM:SS(.sss)?Z)")
		}
		if _, err := time.Parse(time.RFC3339Nano, record.Timestamp); err != nil {
			return taxonomy.Wrap(taxonomy.GovernanceInvalidFormat, "timestamp is not parseable", err)
		}
	}

	return nil
}

// write persists the record to today's log file. Persistence failure aborts
// the action when EnforceLogging is true; otherwise the failure is logged as
// a warning and write returns nil, so the action continues.
func (m *Middleware) write(record LogRecord) error {
	block := render(record)
	if err := m.vault.LogEntry(time.Now().UTC(), m.version, block); err != nil {
		if m.cfg.EnforceLogging {
			return taxonomy.Wrap(taxonomy.Internal, "failed to persist governance log record", err)
		}
		m.logger.Warn("governance log write failed but enforce_logging is disabled", "error", err)
	}
	return nil
}

// render formats a log record as the level-3-heading block described in
// the per-day log file format.
func render(r LogRecord) string {
	block := fmt.Sprintf("### [%s] %s :: %s\n\n", r.Timestamp, r.Source, r.Action)
	block += renderSection("Metadata", r.Metadata)
	block += renderSection("Context", r.Context)
	block += renderSection("Changes", r.Changes)
	block += renderSection("Result", r.Result)
	if len(r.Artifacts) > 0 {
		block += "**Artifacts**\n\n"
		for _, a := range r.Artifacts {
			block += fmt.Sprintf("- %s\n", a)
		}
		block += "\n"
	}
	return block
}

func renderSection(title string, data map[string]any) string {
	if len(data) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return ""
	}
	return fmt.Sprintf("**%s**\n\n```json\n%s\n```\n\n", title, string(b))
}

// summarize captures a tool result (or error) into a compact map suitable
// for the post-verify record's Result field.
func summarize(result any, err error) map[string]any {
	if err != nil {
		return map[string]any{
			"success": false,
			"error":   err.Error(),
			"kind":    string(taxonomy.KindOf(err)),
		}
	}
	return map[string]any{
		"success": true,
		"summary": fmt.Sprintf("%v", result),
	}
}
