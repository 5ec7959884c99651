package router

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wangfeng/cherrycake-gateway/pkg/action"
	"github.com/wangfeng/cherrycake-gateway/pkg/output"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
)

// Status is the terminal state of a dispatch.
type Status uint8

const (
	// StatusAccepted indicates an action accepted the request.
	StatusAccepted Status = iota
	// StatusError indicates the selected action failed.
	StatusError
	// StatusNotFound indicates no action matched or every match declined.
	StatusNotFound
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusError:
		return "error"
	case StatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Inbound is the request handed to the dispatcher by the front controller.
type Inbound struct {
	URI   string
	Query url.Values
	Body  url.Values
	HTTP  *http.Request
}

// Dispatch is the result of running an inbound request.
type Dispatch struct {
	ID         string
	Status     Status
	ActionName string
	Outcome    action.Outcome
	Response   *output.Response
}

// SplitPath returns the path segments of uri. The query string and leading
// and trailing slashes are ignored; an empty path has no segments.
func SplitPath(uri string) []string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		uri = uri[:i]
	}
	uri = strings.Trim(uri, "/")
	if uri == "" {
		return nil
	}

	segments := strings.Split(uri, "/")
	for i, s := range segments {
		if unescaped, err := url.PathUnescape(s); err == nil {
			segments[i] = unescaped
		}
	}
	return segments
}

// Run dispatches in to the first mapped action that accepts it.
func (r *Actions) Run(ctx context.Context, in Inbound) Dispatch {
	start := time.Now()
	d := Dispatch{ID: uuid.New().String(), Status: StatusNotFound}
	log := r.logger.With(slog.String("dispatch_id", d.ID))

	query := in.Query
	if query == nil {
		if i := strings.IndexByte(in.URI, '?'); i >= 0 {
			query, _ = url.ParseQuery(in.URI[i+1:])
		}
	}

	segments := SplitPath(in.URI)
	for _, m := range r.snapshot() {
		if !m.action.Request.MatchesPath(segments) {
			continue
		}

		values, err := m.action.Request.Retrieve(segments, query, in.Body, r.security)
		if err != nil {
			var rejection *request.RejectionError
			if errors.As(err, &rejection) {
				log.DebugContext(ctx, "Candidate rejected",
					slog.String("action", m.name),
					slog.String("parameter", rejection.Parameter),
					slog.String("report", rejection.Report.String()))
			}
			continue
		}

		call := &action.Call{
			ID:     d.ID,
			Action: m.name,
			Values: values,
			HTTP:   in.HTTP,
		}
		out := m.action.Run(ctx, r.rt, call)
		log.DebugContext(ctx, "Action run",
			slog.String("action", m.name),
			slog.String("status", out.Status.String()),
			slog.Bool("cache_hit", out.CacheHit))

		if out.IsDeclined() {
			continue
		}

		d.ActionName = m.name
		d.Outcome = out
		if out.IsError() {
			d.Status = StatusError
			d.Response = r.failures.Error(ctx, out.Err)
		} else {
			d.Status = StatusAccepted
			d.Response = out.Response
		}
		break
	}

	if d.Status == StatusNotFound {
		d.Response = r.failures.NotFound(ctx, in.URI)
	}
	r.metrics.Dispatch(d.Status.String(), d.ActionName, time.Since(start))
	return d
}
