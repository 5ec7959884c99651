package api

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/wangfeng/cherrycake-gateway/pkg/output"
	"github.com/wangfeng/cherrycake-gateway/pkg/router"
)

// maxBodyBytes bounds the request body read for parameter extraction.
const maxBodyBytes = 1 << 20

// DispatchHeader carries the dispatch ID on every dispatched response.
const DispatchHeader = "X-Dispatch-ID"

// Dispatcher hands every request not matched by a gin route to the action
// dispatcher.
type Dispatcher struct {
	actions *router.Actions
	logger  *slog.Logger
}

// NewDispatcher creates a new dispatch handler
func NewDispatcher(actions *router.Actions, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{actions: actions, logger: logger}
}

// RegisterRoutes makes the dispatcher the fallback handler of router
func (d *Dispatcher) RegisterRoutes(router *gin.Engine) {
	router.NoRoute(d.Handle)
	router.NoMethod(d.Handle)
}

// Handle dispatches the request and renders the outcome
func (d *Dispatcher) Handle(c *gin.Context) {
	body, err := readBody(c.Request)
	if err != nil {
		d.logger.WarnContext(c.Request.Context(), "Failed to read request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result := d.actions.Run(c.Request.Context(), router.Inbound{
		URI:   c.Request.URL.RequestURI(),
		Query: c.Request.URL.Query(),
		Body:  body,
		HTTP:  c.Request,
	})

	c.Header(DispatchHeader, result.ID)
	render(c, result.Response)
}

// readBody returns the posted fields. Form bodies are parsed by net/http;
// JSON object bodies contribute their top level members.
func readBody(r *http.Request) (url.Values, error) {
	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return url.Values{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		return jsonFields(raw), nil
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	default:
		r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
}

func jsonFields(raw []byte) url.Values {
	values := url.Values{}
	result := gjson.ParseBytes(raw)
	if !result.IsObject() {
		return values
	}
	result.ForEach(func(key, value gjson.Result) bool {
		switch {
		case value.IsArray():
			for _, item := range value.Array() {
				values.Add(key.String(), item.String())
			}
		case value.IsObject():
			values.Set(key.String(), value.Raw)
		case value.Type == gjson.Null:
		default:
			values.Set(key.String(), value.String())
		}
		return true
	})
	return values
}

func render(c *gin.Context, resp *output.Response) {
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	for name, value := range resp.Headers {
		c.Header(name, value)
	}
	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode())
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(resp.StatusCode(), contentType, resp.Body)
}
