package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across mend.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldSessionID = "session_id"
	FieldComponent = "component"

	// Cell coordinates
	FieldTable     = "table"
	FieldAttribute = "attribute"
	FieldTupleID   = "tid"
	FieldValue     = "value"
	FieldOldValue  = "old_value"
	FieldNewValue  = "new_value"

	// Rules and violations
	FieldRuleID      = "rule_id"
	FieldViolationID = "vid"
	FieldFixCount    = "fixes"

	// Ranking
	FieldScore   = "score"
	FieldOffset  = "offset"
	FieldScoring = "scoring"

	// Operations
	FieldOperation = "operation"
	FieldQuery     = "query"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount     = "count"
	FieldBatchSize = "batch_size"

	// Files and paths
	FieldFile = "file"
)

// Context keys for propagating logging context
type contextKey string

const (
	sessionIDKey contextKey = "logger_session_id"
	componentKey contextKey = "logger_component"
)

// WithSessionID adds a repair session ID to the context for logging
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok && sessionID != "" {
		fields = append(fields, FieldSessionID, sessionID)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base with the fields carried by ctx attached.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
//
// Example:
//
//	manager, err := consistency.NewManager(st, rules, batch, logger.ComponentLogger("detect"))
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// CellFields returns the key-value pairs identifying a cell coordinate.
func CellFields(table, attribute string, tid int) []interface{} {
	return []interface{}{FieldTable, table, FieldAttribute, attribute, FieldTupleID, tid}
}
