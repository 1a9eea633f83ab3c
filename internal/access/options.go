package access

import "github.com/marcus-qen/pvego/internal/resource"

// RequestOption adjusts the parts of an outgoing request.
type RequestOption func(*resource.Parts)

// WithTicket authenticates the request with t.
func WithTicket(t *Ticket) RequestOption {
	return func(p *resource.Parts) {
		if t != nil {
			t.Authorize(p)
		}
	}
}

// WithHeader sets an extra request header.
func WithHeader(key, value string) RequestOption {
	return func(p *resource.Parts) {
		p.Headers = p.Headers.Clone().Set(key, value)
	}
}

func applyOptions(parts resource.Parts, opts []RequestOption) resource.Parts {
	for _, opt := range opts {
		if opt != nil {
			opt(&parts)
		}
	}
	return parts
}
