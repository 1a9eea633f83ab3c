package access

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcus-qen/pvego/internal/codec"
	"github.com/marcus-qen/pvego/internal/resource"
	"github.com/marcus-qen/pvego/internal/session"
)

var _ = Describe("Ticket", func() {
	ctx := context.Background()

	It("extracts the ticket and CSRF token from the nested data object", func() {
		r := respondWith(ok(map[string]any{
			"data": map[string]any{
				"CSRFPreventionToken": "abc",
				"ticket":              "xyz",
				"username":            "root@pam",
			},
		}))

		t := NewTicket()
		Expect(t.GenerateTicket(ctx, r)).To(Succeed())
		Expect(t.GetTicket()).To(Equal("xyz"))
		Expect(t.GetCSRFPreventionToken()).To(Equal("abc"))
		Expect(t.GetUsername()).To(Equal("root@pam"))
		Expect(t.Valid()).To(BeTrue())
	})

	It("posts JSON parts with no cookies to the ticket endpoint", func() {
		r := respondWith(ok(map[string]any{"data": map[string]any{"CSRFPreventionToken": "abc", "ticket": "xyz"}}))

		Expect(NewTicket().GenerateTicket(ctx, r)).To(Succeed())
		req := r.last()
		Expect(req.Method).To(Equal(http.MethodPost))
		Expect(req.Path).To(Equal("/api2/json/access/ticket"))
		Expect(req.Cookies.Len()).To(BeZero())
		ct, _ := req.Headers.Get("Content-Type")
		Expect(ct).To(Equal("application/json"))
	})

	It("keeps previous values when the request fails", func() {
		r := respondWith(
			ok(map[string]any{"data": map[string]any{"CSRFPreventionToken": "abc", "ticket": "xyz"}}),
			transportFailure("dial tcp: connection refused"),
		)

		t := NewTicket()
		Expect(t.GenerateTicket(ctx, r)).To(Succeed())

		err := t.GenerateTicket(ctx, r)
		Expect(err).To(HaveOccurred())
		var apiErr *session.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Code).To(Equal(session.CodeTransport))
		Expect(t.GetTicket()).To(Equal("xyz"))
		Expect(t.GetCSRFPreventionToken()).To(Equal("abc"))
	})

	It("treats an authentication failure as an error", func() {
		r := respondWith(status(http.StatusUnauthorized, map[string]any{}))

		t := NewTicket()
		err := t.GenerateTicket(ctx, r)
		Expect(session.IsStatus(err, http.StatusUnauthorized)).To(BeTrue())
		Expect(t.Valid()).To(BeFalse())
	})

	It("rejects a success reply without the token fields", func() {
		r := respondWith(ok(map[string]any{"data": map[string]any{"ticket": "xyz"}}))

		t := NewTicket()
		Expect(t.GenerateTicket(ctx, r)).To(MatchError(ErrMalformedResponse))
		Expect(t.GetTicket()).To(BeEmpty())
	})

	It("treats get, put and delete as no-ops", func() {
		r := respondWith()
		t := NewTicket()
		for _, v := range []resource.Verb{resource.VerbGet, resource.VerbPut, resource.VerbDelete} {
			Expect(resource.Invoke(ctx, t, v, r, resource.JSONParts())).To(Succeed())
		}
		Expect(r.count()).To(BeZero())
	})

	It("authorizes request parts with cookie and CSRF header", func() {
		r := respondWith(ok(map[string]any{"data": map[string]any{"CSRFPreventionToken": "abc", "ticket": "xyz"}}))
		t := NewTicket()
		Expect(t.GenerateTicket(ctx, r)).To(Succeed())

		parts := resource.JSONParts()
		WithTicket(t)(&parts)
		cookie, _ := parts.Cookies.Get(AuthCookie)
		header, _ := parts.Headers.Get(CSRFHeader)
		Expect(cookie).To(Equal("xyz"))
		Expect(header).To(Equal("abc"))
	})

	It("leaves header and cookie sets shared with other parts untouched", func() {
		t := RestoreTicket("xyz", "abc", "root@pam")
		base := resource.JSONParts()
		base.Cookies = codec.NewPairs(AuthCookie, "other")

		authed := base
		t.Authorize(&authed)

		cookie, _ := base.Cookies.Get(AuthCookie)
		Expect(cookie).To(Equal("other"))
		_, found := base.Headers.Get(CSRFHeader)
		Expect(found).To(BeFalse())

		cookie, _ = authed.Cookies.Get(AuthCookie)
		Expect(cookie).To(Equal("xyz"))
	})
})
