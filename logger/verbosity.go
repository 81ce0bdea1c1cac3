package logger

import "go.uber.org/zap/zapcore"

// Verbosity levels counted from the CLI -v flag.
const (
	VerbosityUser  = 0 // results, warnings and errors
	VerbosityInfo  = 1 // -v: session progress, group selection, applied fixes
	VerbosityDebug = 2 // -vv: per-candidate scores, oracle answers, solver fallbacks
	VerbosityTrace = 3 // -vvv: detection and persistence counts per cell update
	VerbosityAll   = 4
)

// VerbosityToLevel maps a -v count to the minimum zap level. Counts above
// VerbosityDebug log everything zap can, since zap has no trace level.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
