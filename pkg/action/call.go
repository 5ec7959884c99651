package action

import (
	"context"
	"net/http"

	"github.com/wangfeng/cherrycake-gateway/pkg/output"
	"github.com/wangfeng/cherrycake-gateway/pkg/request"
)

// HandlerFunc is a module method invoked for an action.
type HandlerFunc func(ctx context.Context, call *Call) Outcome

// Call carries the state of one action run. It is created per dispatch and
// never shared between dispatches.
type Call struct {
	// ID identifies the dispatch this call belongs to.
	ID string
	// Action is the name the action was mapped under.
	Action string
	// Values holds the parameter values bound for this dispatch.
	Values *request.Values
	// HTTP is the originating request, if any.
	HTTP *http.Request
	// Response is the pending output.
	Response *output.Response
}

// Param returns the filtered value of a parameter.
func (c *Call) Param(name string) string {
	return c.Values.Get(name)
}

// Respond sets the pending output.
func (c *Call) Respond(resp *output.Response) {
	c.Response = resp
}

// RespondJSON sets a JSON response as the pending output.
func (c *Call) RespondJSON(code int, v interface{}) error {
	resp, err := output.JSON(code, v)
	if err != nil {
		return err
	}
	c.Response = resp
	return nil
}
