package access

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/marcus-qen/pvego/internal/resource"
	"github.com/marcus-qen/pvego/internal/session"
)

var _ = Describe("User", func() {
	ctx := context.Background()

	Describe("GetUser", func() {
		It("merges only the fields present in the reply", func() {
			u := NewUserWithID("alice@pve")
			u.SetFirstName("Alice")
			u.SetComment("ops")

			r := respondWith(ok(map[string]any{"email": "a@b.com"}))
			Expect(u.GetUser(ctx, r)).To(Succeed())

			Expect(u.GetEmail()).To(Equal("a@b.com"))
			Expect(u.GetFirstName()).To(Equal("Alice"))
			Expect(u.GetComment()).To(Equal("ops"))
			Expect(u.IsActive()).To(BeFalse())
		})

		It("reads the nested data object PVE returns", func() {
			u := NewUserWithID("alice@pve")
			r := respondWith(ok(map[string]any{
				"data": map[string]any{
					"firstname": "Alice",
					"lastname":  "Liddell",
					"comment":   "ops",
					"email":     "alice@example.com",
					"enable":    json.Number("1"),
					"expire":    json.Number("1700000000"),
					"groups":    []any{"admins", "ops"},
					"keys":      "x!y",
				},
			}))

			Expect(u.GetUser(ctx, r)).To(Succeed())
			Expect(u.Snapshot()).To(Equal(UserInfo{
				UserID:    "alice@pve",
				FirstName: "Alice",
				LastName:  "Liddell",
				Email:     "alice@example.com",
				Comment:   "ops",
				Enabled:   true,
				Expire:    1700000000,
				Groups:    []string{"admins", "ops"},
				Keys:      "x!y",
			}))
		})

		It("escapes the user id in the path", func() {
			r := respondWith(ok(map[string]any{}))
			Expect(NewUserWithID("a b@pve").GetUser(ctx, r)).To(Succeed())

			req := r.last()
			Expect(req.Method).To(Equal(http.MethodGet))
			Expect(req.Path).To(Equal("/api2/json/access/users/a%20b@pve"))
		})

		It("leaves fields untouched on failure", func() {
			u := NewUserWithID("alice@pve")
			u.SetEmail("old@example.com")

			r := respondWith(status(http.StatusNotFound, map[string]any{"data": map[string]any{"email": "new@example.com"}}))
			err := u.GetUser(ctx, r)
			Expect(session.IsStatus(err, http.StatusNotFound)).To(BeTrue())
			Expect(u.GetEmail()).To(Equal("old@example.com"))
		})

		It("requires a user id", func() {
			r := respondWith()
			Expect(NewUser().GetUser(ctx, r)).To(MatchError(ErrMissingUserID))
			Expect(r.count()).To(BeZero())
		})
	})

	Describe("Create", func() {
		It("posts the user fields and password with the ticket attached", func() {
			t := &Ticket{ticket: "xyz", csrfPreventionToken: "abc"}
			u := NewUserWithID("bob@pve")
			u.SetEmail("bob@example.com")
			u.SetGroups([]string{"a", "b"})
			u.SetExpirationDate(42)
			u.Activate()

			r := respondWith(ok(map[string]any{"data": nil}))
			Expect(u.Create(ctx, r, "s3cret", WithTicket(t))).To(Succeed())

			req := r.last()
			Expect(req.Method).To(Equal(http.MethodPost))
			Expect(req.Path).To(Equal("/api2/json/access/users"))
			Expect(req.Body).To(Equal(map[string]any{
				"userid":   "bob@pve",
				"email":    "bob@example.com",
				"groups":   "a,b",
				"expire":   int64(42),
				"enable":   1,
				"password": "s3cret",
			}))
			cookie, _ := req.Cookies.Get(AuthCookie)
			Expect(cookie).To(Equal("xyz"))
			csrf, _ := req.Headers.Get(CSRFHeader)
			Expect(csrf).To(Equal("abc"))
		})

		It("omits the password when none is given", func() {
			r := respondWith()
			Expect(NewUserWithID("bob@pve").Create(ctx, r, "")).To(Succeed())
			Expect(r.last().Body).NotTo(HaveKey("password"))
			Expect(r.last().Body).To(HaveKeyWithValue("enable", 0))
		})

		It("reports a rejected create", func() {
			r := respondWith(status(http.StatusBadRequest, map[string]any{"errors": map[string]any{"userid": "invalid"}}))
			err := NewUserWithID("bob").Create(ctx, r, "pw")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("userid: invalid"))
		})
	})

	Describe("shared request parts", func() {
		It("keeps each create independent and the caller's parts unchanged", func() {
			alice := NewUserWithID("alice@pve")
			alice.SetEmail("alice@example.com")
			bob := NewUserWithID("bob@pve")

			parts := resource.JSONParts()
			r := respondWith()
			Expect(resource.Invoke(ctx, alice, resource.VerbPost, r, parts)).To(Succeed())
			Expect(resource.Invoke(ctx, bob, resource.VerbPost, r, parts)).To(Succeed())

			Expect(parts.Body).To(BeEmpty())
			Expect(r.count()).To(Equal(2))
			body := r.last().Body
			Expect(body).To(HaveKeyWithValue("userid", "bob@pve"))
			Expect(body).NotTo(HaveKey("email"))
		})

		It("does not leak fields between updates", func() {
			alice := NewUserWithID("alice@pve")
			alice.SetComment("first")
			alice.Activate()
			bob := NewUserWithID("bob@pve")

			parts := resource.JSONParts()
			parts.Body["comment"] = "kept"
			r := respondWith()
			Expect(resource.Invoke(ctx, alice, resource.VerbPut, r, parts)).To(Succeed())
			Expect(resource.Invoke(ctx, bob, resource.VerbPut, r, parts)).To(Succeed())

			Expect(parts.Body).To(Equal(map[string]any{"comment": "kept"}))
			Expect(r.last().Path).To(Equal("/api2/json/access/users/bob@pve"))
			Expect(r.last().Body).To(HaveKeyWithValue("comment", "kept"))
			Expect(r.last().Body).To(HaveKeyWithValue("enable", 0))
		})
	})

	Describe("ApplyChanges", func() {
		It("puts the writable fields without userid or password", func() {
			u := NewUserWithID("bob@pve")
			u.SetFirstName("Bob")
			u.SetKeys("key")

			r := respondWith()
			Expect(u.ApplyChanges(ctx, r)).To(Succeed())

			req := r.last()
			Expect(req.Method).To(Equal(http.MethodPut))
			Expect(req.Path).To(Equal("/api2/json/access/users/bob@pve"))
			Expect(req.Body).To(Equal(map[string]any{
				"firstname": "Bob",
				"keys":      "key",
				"expire":    int64(0),
				"enable":    0,
			}))
		})
	})

	Describe("UpdatePassword", func() {
		It("sends the new password and the old one as confirmation", func() {
			r := respondWith()
			Expect(NewUserWithID("bob@pve").UpdatePassword(ctx, r, "old", "new")).To(Succeed())

			req := r.last()
			Expect(req.Method).To(Equal(http.MethodPut))
			Expect(req.Path).To(Equal("/api2/json/access/password"))
			Expect(req.Body).To(Equal(map[string]any{
				"userid":                "bob@pve",
				"password":              "new",
				"confirmation-password": "old",
			}))
		})

		It("requires both passwords", func() {
			r := respondWith()
			Expect(NewUserWithID("bob@pve").UpdatePassword(ctx, r, "", "new")).To(MatchError(ErrPasswordRequired))
			Expect(NewUser().UpdatePassword(ctx, r, "old", "new")).To(MatchError(ErrMissingUserID))
			Expect(r.count()).To(BeZero())
		})
	})

	Describe("Remove", func() {
		It("deletes the user", func() {
			r := respondWith()
			Expect(NewUserWithID("bob@pve").Remove(ctx, r)).To(Succeed())
			Expect(r.last().Method).To(Equal(http.MethodDelete))
			Expect(r.last().Path).To(Equal("/api2/json/access/users/bob@pve"))
		})

		It("is reachable through the verb dispatcher", func() {
			r := respondWith(transportFailure("reset"))
			err := resource.Invoke(ctx, NewUserWithID("bob@pve"), resource.VerbDelete, r, resource.JSONParts())
			var apiErr *session.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.Code).To(Equal(session.CodeTransport))
		})
	})

	Describe("against a session", func() {
		var (
			srv  *httptest.Server
			sess *session.Session
		)

		BeforeEach(func() {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api2/json/access/ticket", func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body["username"] != "root@pam" || body["password"] != "secret" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(`{"data":{"CSRFPreventionToken":"abc","ticket":"xyz","username":"root@pam"}}`))
			})
			mux.HandleFunc("GET /api2/json/access/users/{id}", func(w http.ResponseWriter, r *http.Request) {
				if c, err := r.Cookie(AuthCookie); err != nil || c.Value != "xyz" {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(`{"data":{"email":"alice@example.com","enable":1,"expire":0,"groups":["ops"]}}`))
			})
			srv = httptest.NewServer(mux)

			u, err := url.Parse(srv.URL)
			Expect(err).NotTo(HaveOccurred())
			host, portStr, err := net.SplitHostPort(u.Host)
			Expect(err).NotTo(HaveOccurred())
			port, err := strconv.Atoi(portStr)
			Expect(err).NotTo(HaveOccurred())

			p := session.DefaultParams(host, "root", "secret", "pam")
			p.Port = uint16(port)
			p.Protocol = session.ProtoHTTP
			sess = session.New(p)
		})

		AfterEach(func() {
			sess.Disconnect()
			srv.Close()
		})

		It("generates a ticket and reads a user with it", func() {
			t := NewTicket()
			Expect(t.GenerateTicket(ctx, sess)).To(Succeed())

			u := NewUserWithID("alice@pve")
			Expect(u.GetUser(ctx, sess, WithTicket(t))).To(Succeed())
			Expect(u.GetEmail()).To(Equal("alice@example.com"))
			Expect(u.IsActive()).To(BeTrue())
			Expect(u.GetGroups()).To(Equal([]string{"ops"}))
		})

		It("is rejected without a ticket", func() {
			err := NewUserWithID("alice@pve").GetUser(ctx, sess)
			Expect(session.IsStatus(err, http.StatusUnauthorized)).To(BeTrue())
		})

		It("fails fast once disconnected", func() {
			sess.Disconnect()
			err := NewTicket().GenerateTicket(ctx, sess)
			Expect(errors.Is(err, session.ErrNotConnected)).To(BeTrue())
		})
	})
})

var _ = Describe("value conversion", func() {
	DescribeTable("enable",
		func(in any, want bool) {
			got, ok := asBool(in)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(want))
		},
		Entry("bool", true, true),
		Entry("json number", json.Number("0"), false),
		Entry("float", float64(1), true),
		Entry("numeric string", "1", true),
		Entry("word", "false", false),
	)

	DescribeTable("expire rejects values outside int64",
		func(in any) {
			_, ok := asInt64(in)
			Expect(ok).To(BeFalse())
		},
		Entry("huge json number", json.Number("1e300")),
		Entry("huge float", float64(1e19)),
		Entry("negative huge float", float64(-1e19)),
		Entry("infinity", math.Inf(1)),
		Entry("not a number", math.NaN()),
	)

	It("keeps the stored expiry when the reply is out of range", func() {
		u := NewUserWithID("alice@pve")
		u.SetExpirationDate(1700000000)
		u.merge(map[string]any{"expire": json.Number("1e300")})
		Expect(u.GetExpirationDate()).To(Equal(int64(1700000000)))
	})

	It("accepts whole floats inside the range", func() {
		got, ok := asInt64(json.Number("1.7e9"))
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(int64(1700000000)))
	})

	It("splits comma separated groups", func() {
		got, ok := asGroups("a, b,,c")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal([]string{"a", "b", "c"}))
	})

	It("ignores values of the wrong type", func() {
		_, ok := asInt64([]any{})
		Expect(ok).To(BeFalse())
		_, ok = asString(7)
		Expect(ok).To(BeFalse())
	})
})
