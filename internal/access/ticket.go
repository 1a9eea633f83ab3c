package access

import (
	"context"
	"fmt"

	"github.com/marcus-qen/pvego/internal/codec"
	"github.com/marcus-qen/pvego/internal/resource"
)

const (
	ticketPath = "/access/ticket"

	// AuthCookie carries the ticket on authenticated requests.
	AuthCookie = "PVEAuthCookie"
	// CSRFHeader carries the CSRF prevention token on write requests.
	CSRFHeader = "CSRFPreventionToken"
)

// Ticket is a PVE login ticket and its CSRF prevention token.
type Ticket struct {
	ticket              string
	csrfPreventionToken string
	username            string
}

var _ resource.Resource = (*Ticket)(nil)

// NewTicket returns an empty ticket.
func NewTicket() *Ticket {
	return &Ticket{}
}

// RestoreTicket rebuilds a ticket from previously issued values.
func RestoreTicket(ticket, csrfPreventionToken, username string) *Ticket {
	return &Ticket{
		ticket:              ticket,
		csrfPreventionToken: csrfPreventionToken,
		username:            username,
	}
}

// GetTicket returns the value sent as the PVEAuthCookie cookie.
func (t *Ticket) GetTicket() string {
	return t.ticket
}

// GetCSRFPreventionToken returns the token write requests must carry.
func (t *Ticket) GetCSRFPreventionToken() string {
	return t.csrfPreventionToken
}

// GetUsername returns the login name the server issued the ticket for.
func (t *Ticket) GetUsername() string {
	return t.username
}

// Valid reports whether both ticket and token are set.
func (t *Ticket) Valid() bool {
	return t.ticket != "" && t.csrfPreventionToken != ""
}

// GenerateTicket logs in with the session credentials and stores the
// returned ticket. On failure the previous values are kept.
func (t *Ticket) GenerateTicket(ctx context.Context, r resource.Requester) error {
	parts := resource.JSONParts()
	parts.Cookies = codec.Pairs{}
	return t.Post(ctx, r, parts)
}

// Authorize attaches the ticket cookie and CSRF header to p. The header and
// cookie sets are copied first, so slices p shares with other parts keep
// their values.
func (t *Ticket) Authorize(p *resource.Parts) {
	p.Cookies = p.Cookies.Clone().Set(AuthCookie, t.ticket)
	p.Headers = p.Headers.Clone().Set(CSRFHeader, t.csrfPreventionToken)
}

// Post logs in and stores the ticket from the reply.
func (t *Ticket) Post(ctx context.Context, r resource.Requester, parts resource.Parts) error {
	resp := resource.Call(ctx, r, resource.VerbPost, ticketPath, parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("generate ticket: %w", err)
	}

	data := resp.DataObject()
	ticket, _ := data["ticket"].(string)
	csrf, _ := data["CSRFPreventionToken"].(string)
	if ticket == "" || csrf == "" {
		return fmt.Errorf("generate ticket: %w: missing ticket or CSRFPreventionToken", ErrMalformedResponse)
	}

	t.ticket = ticket
	t.csrfPreventionToken = csrf
	if username, ok := data["username"].(string); ok {
		t.username = username
	}
	return nil
}

// Get is a no-op; a ticket cannot be read back.
func (t *Ticket) Get(context.Context, resource.Requester, resource.Parts) error {
	return nil
}

// Put is a no-op.
func (t *Ticket) Put(context.Context, resource.Requester, resource.Parts) error {
	return nil
}

// Delete is a no-op.
func (t *Ticket) Delete(context.Context, resource.Requester, resource.Parts) error {
	return nil
}
