package session

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/marcus-qen/pvego/internal/codec"
)

// Error codes carried by APIError.
const (
	CodeNotConnected   = "not_connected"
	CodeRequestInvalid = "request_invalid"
	CodeTransport      = "transport"
	CodeParseError     = "parse_error"
	CodeHTTPStatus     = "http_status"
)

const notConnectedMsg = "an internal error has occurred: the underlying transport handle has not been initialized"

// ErrNotConnected is matched by errors.Is for requests made without a handle.
var ErrNotConnected = errors.New("session not connected")

// Request is one API call. Path is relative to the base URL and includes the
// /api2/json prefix.
type Request struct {
	Method  string
	Path    string
	Body    map[string]any
	Headers codec.Pairs
	Cookies codec.Pairs
}

// Response is the uniform envelope returned for every request.
type Response struct {
	Data       any    `json:"data"`
	Error      bool   `json:"error"`
	ErrorMsg   string `json:"errorMsg"`
	StatusCode int    `json:"statusCode"`

	code string
}

func failure(code string, status int, msg string) Response {
	return Response{
		Data:       map[string]any{},
		Error:      true,
		ErrorMsg:   msg,
		StatusCode: status,
		code:       code,
	}
}

// Object returns the payload when it is a JSON object.
func (r Response) Object() map[string]any {
	m, _ := r.Data.(map[string]any)
	return m
}

// DataObject returns payload["data"] when that is an object, else the
// payload object itself.
func (r Response) DataObject() map[string]any {
	obj := r.Object()
	if obj == nil {
		return nil
	}
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner
	}
	return obj
}

// OK reports a transport success with a 2xx status.
func (r Response) OK() bool {
	return !r.Error && r.StatusCode >= 200 && r.StatusCode < 300
}

// Err folds transport and HTTP failures into a single *APIError. It returns
// nil only for OK responses.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	if r.Error {
		code := r.code
		if code == "" {
			code = CodeTransport
		}
		return &APIError{Code: code, StatusCode: r.StatusCode, Message: r.ErrorMsg}
	}
	return &APIError{Code: CodeHTTPStatus, StatusCode: r.StatusCode, Message: statusMessage(r)}
}

// statusMessage prefers the server's own explanation of a non-2xx reply.
func statusMessage(r Response) string {
	obj := r.Object()
	if errs, ok := obj["errors"].(map[string]any); ok && len(errs) > 0 {
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %v", k, errs[k]))
		}
		return strings.Join(parts, "; ")
	}
	if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
		return strings.TrimSpace(msg)
	}
	if text := http.StatusText(r.StatusCode); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected status"
}

// APIError is a categorized request failure.
type APIError struct {
	Code       string `json:"code"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("pve %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pve %s: %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotConnected && e.Code == CodeNotConnected
}

// IsStatus reports whether err is an HTTP status failure with the given code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeHTTPStatus && apiErr.StatusCode == status
}
