// Package resource defines the capability shared by every PVE API object:
// the four HTTP verbs, each taking a requester and the request parts.
package resource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"

	"github.com/marcus-qen/pvego/internal/codec"
	"github.com/marcus-qen/pvego/internal/session"
)

// APIPrefix is prepended to every resource path.
const APIPrefix = "/api2/json"

// ErrUnknownVerb is returned by Invoke for a verb outside the closed set.
var ErrUnknownVerb = errors.New("unknown verb")

// Requester executes session requests. *session.Session satisfies it.
type Requester interface {
	Do(ctx context.Context, req session.Request) session.Response
}

// Parts are the body, headers and cookies of one request.
type Parts struct {
	Body    map[string]any
	Headers codec.Pairs
	Cookies codec.Pairs
}

// JSONParts returns the parts every JSON call starts from.
func JSONParts() Parts {
	return Parts{
		Body: map[string]any{},
		Headers: codec.NewPairs(
			"Content-Type", "application/json",
			"charsets", "utf-8",
		),
	}
}

// Clone returns a copy that shares no maps or slices with p.
func (p Parts) Clone() Parts {
	out := Parts{
		Headers: p.Headers.Clone(),
		Cookies: p.Cookies.Clone(),
	}
	if p.Body != nil {
		out.Body = maps.Clone(p.Body)
	}
	return out
}

// Resource is an API object that can be read, created, updated and deleted.
type Resource interface {
	Get(ctx context.Context, r Requester, parts Parts) error
	Post(ctx context.Context, r Requester, parts Parts) error
	Put(ctx context.Context, r Requester, parts Parts) error
	Delete(ctx context.Context, r Requester, parts Parts) error
}

// Verb is one of the four resource operations.
type Verb int

const (
	VerbGet Verb = iota + 1
	VerbPost
	VerbPut
	VerbDelete
)

// Method returns the HTTP method for v, or "" for an unknown verb.
func (v Verb) Method() string {
	switch v {
	case VerbGet:
		return http.MethodGet
	case VerbPost:
		return http.MethodPost
	case VerbPut:
		return http.MethodPut
	case VerbDelete:
		return http.MethodDelete
	default:
		return ""
	}
}

func (v Verb) String() string {
	if m := v.Method(); m != "" {
		return m
	}
	return fmt.Sprintf("Verb(%d)", int(v))
}

// Invoke dispatches v to the matching method of res.
func Invoke(ctx context.Context, res Resource, v Verb, r Requester, parts Parts) error {
	switch v {
	case VerbGet:
		return res.Get(ctx, r, parts)
	case VerbPost:
		return res.Post(ctx, r, parts)
	case VerbPut:
		return res.Put(ctx, r, parts)
	case VerbDelete:
		return res.Delete(ctx, r, parts)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownVerb, v)
	}
}

// Call sends parts to APIPrefix+path with the method of v.
func Call(ctx context.Context, r Requester, v Verb, path string, parts Parts) session.Response {
	return r.Do(ctx, session.Request{
		Method:  v.Method(),
		Path:    APIPrefix + path,
		Body:    parts.Body,
		Headers: parts.Headers,
		Cookies: parts.Cookies,
	})
}
