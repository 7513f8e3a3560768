package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for
// the operational CLI. Exit codes are deliberately coarse: 0 on success, 1 on
// any observed failure.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if pe, ok := AsPipeline(err); ok {
		if a.verbose {
			return pe.Error()
		}
		switch pe.Category {
		case CategoryConfig, CategoryInvalidInput:
			return pe.Message
		default:
			return fmt.Sprintf("%s: %s", pe.Category, pe.Message)
		}
	}

	return fmt.Sprintf("Error: %v", err)
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if pe, ok := AsPipeline(err); ok {
		return pe.Category == CategoryInternal || pe.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if pe, ok := AsPipeline(err); ok {
		level := a.slogLevelFromSeverity(pe.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(pe.Category)),
		}
		if pe.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(nil, level, pe.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
