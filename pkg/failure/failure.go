// Package failure renders the responses for dispatches that end without an
// accepting action.
package failure

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/wangfeng/cherrycake-gateway/pkg/output"
)

// Reporter produces responses for routing failures and handler errors.
type Reporter interface {
	NotFound(ctx context.Context, uri string) *output.Response
	Error(ctx context.Context, err error) *output.Response
}

// JSONReporter renders failures as small JSON documents. Handler error
// details are logged, never sent to the client.
type JSONReporter struct {
	Logger *slog.Logger
}

// NewJSONReporter creates a reporter logging to logger.
func NewJSONReporter(logger *slog.Logger) *JSONReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONReporter{Logger: logger}
}

// NotFound returns a 404 response.
func (r *JSONReporter) NotFound(ctx context.Context, uri string) *output.Response {
	r.Logger.DebugContext(ctx, "No action found", slog.String("uri", uri))
	resp, _ := output.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	return resp
}

// Error returns a 500 response.
func (r *JSONReporter) Error(ctx context.Context, err error) *output.Response {
	r.Logger.ErrorContext(ctx, "Action failed", slog.String("error", err.Error()))
	resp, _ := output.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	return resp
}
