package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
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

	if ge, ok := As(err); ok {
		return a.exitCodeFromGitteh(ge)
	}

	return 1
}

// exitCodeFromGitteh maps GittehError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromGitteh(err *GittehError) int {
	switch err.Category {
	case CategoryInvalidArgument:
		return 2 // Invalid usage
	case CategoryNotFound:
		return 3
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryNativeFailure:
		return 8 // Underlying git failure
	case CategoryStaleHandle, CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if ge, ok := As(err); ok {
		return a.formatGitteh(ge)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatGitteh formats a GittehError for display.
func (a *CLIErrorAdapter) formatGitteh(err *GittehError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig:
		return err.Message
	case CategoryInvalidArgument:
		arg, _ := err.Context["argument"].(string)
		reason, _ := err.Context["reason"].(string)
		if arg != "" && reason != "" {
			return fmt.Sprintf("%s %s: %s", err.Message, arg, reason)
		}
		return err.Message
	case CategoryNotFound:
		if key, ok := err.Context["key"].(string); ok && key != "" {
			return fmt.Sprintf("%s: %s: %s", err.Category, err.Message, key)
		}
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if ge, ok := As(err); ok {
		return ge.Category == CategoryInternal ||
			ge.Category == CategoryNativeFailure ||
			ge.Category == CategoryStaleHandle
	}

	return true
}

// logError logs an error with its category and context.
func (a *CLIErrorAdapter) logError(err error) {
	if ge, ok := As(err); ok {
		attrs := []slog.Attr{
			slog.String("category", string(ge.Category)),
		}
		for k, v := range ge.Context {
			attrs = append(attrs, slog.Any(k, v))
		}
		if ge.Cause != nil {
			attrs = append(attrs, slog.String("cause", ge.Cause.Error()))
		}

		a.logger.LogAttrs(context.Background(), slog.LevelError, ge.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}
