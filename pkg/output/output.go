// Package output holds the response payload produced by action handlers.
package output

import (
	"encoding/json"
	"net/http"
)

// Response is a pending HTTP response. It is plain data so it can be stored
// in and restored from the action cache.
type Response struct {
	Code        int               `json:"code"`
	ContentType string            `json:"contentType,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
}

// JSON creates a response with v encoded as JSON.
func JSON(code int, v interface{}) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Response{Code: code, ContentType: "application/json; charset=utf-8", Body: body}, nil
}

// HTML creates an HTML response.
func HTML(code int, body string) *Response {
	return &Response{Code: code, ContentType: "text/html; charset=utf-8", Body: []byte(body)}
}

// Text creates a plain text response.
func Text(code int, body string) *Response {
	return &Response{Code: code, ContentType: "text/plain; charset=utf-8", Body: []byte(body)}
}

// Redirect creates a redirect response to location.
func Redirect(code int, location string) *Response {
	return &Response{Code: code, Headers: map[string]string{"Location": location}}
}

// WithHeader returns the response with a header set.
func (r *Response) WithHeader(name, value string) *Response {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[name] = value
	return r
}

// StatusCode returns the code, defaulting to 200.
func (r *Response) StatusCode() int {
	if r == nil || r.Code == 0 {
		return http.StatusOK
	}
	return r.Code
}
