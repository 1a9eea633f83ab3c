package access

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/marcus-qen/pvego/internal/resource"
)

const (
	usersPath    = "/access/users"
	passwordPath = "/access/password"
)

// User is a PVE user account identified by name@realm.
type User struct {
	userID    string
	comment   string
	email     string
	firstName string
	lastName  string
	active    bool
	expire    int64
	groups    []string
	keys      string
}

var _ resource.Resource = (*User)(nil)

// UserInfo is a plain view of a User.
type UserInfo struct {
	UserID    string   `json:"userid"`
	FirstName string   `json:"firstname,omitempty"`
	LastName  string   `json:"lastname,omitempty"`
	Email     string   `json:"email,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Enabled   bool     `json:"enable"`
	Expire    int64    `json:"expire"`
	Groups    []string `json:"groups,omitempty"`
	Keys      string   `json:"keys,omitempty"`
}

// NewUser returns a blank, disabled user with no id.
func NewUser() *User {
	return &User{}
}

// NewUserWithID returns a blank, disabled user with the given id.
func NewUserWithID(userID string) *User {
	return &User{userID: userID}
}

// GetUserID returns the name@realm id.
func (u *User) GetUserID() string { return u.userID }

// GetComment returns the free-form comment.
func (u *User) GetComment() string { return u.comment }

// GetEmail returns the contact address.
func (u *User) GetEmail() string { return u.email }

// GetFirstName returns the given name.
func (u *User) GetFirstName() string { return u.firstName }

// GetLastName returns the family name.
func (u *User) GetLastName() string { return u.lastName }

// IsActive reports whether the account is enabled.
func (u *User) IsActive() bool { return u.active }

// GetExpirationDate returns the expiry as a unix timestamp, 0 for never.
func (u *User) GetExpirationDate() int64 { return u.expire }

// GetGroups returns a copy of the group names.
func (u *User) GetGroups() []string { return slices.Clone(u.groups) }

// GetKeys returns the two-factor key ids.
func (u *User) GetKeys() string { return u.keys }

// SetUserID changes the id used for request paths.
func (u *User) SetUserID(userID string) { u.userID = userID }

// SetComment sets the free-form comment.
func (u *User) SetComment(comment string) { u.comment = comment }

// SetEmail sets the contact address.
func (u *User) SetEmail(email string) { u.email = email }

// SetFirstName sets the given name.
func (u *User) SetFirstName(name string) { u.firstName = name }

// SetLastName sets the family name.
func (u *User) SetLastName(name string) { u.lastName = name }

// SetKeys sets the two-factor key ids.
func (u *User) SetKeys(keys string) { u.keys = keys }

// Activate enables the account on the next write.
func (u *User) Activate() { u.active = true }

// Disable disables the account on the next write.
func (u *User) Disable() { u.active = false }

// SetExpirationDate sets the account expiry as a unix timestamp. Zero means
// the account never expires.
func (u *User) SetExpirationDate(unix int64) { u.expire = unix }

// SetGroups replaces the group names.
func (u *User) SetGroups(groups []string) { u.groups = slices.Clone(groups) }

// Snapshot returns a copy of the user's fields.
func (u *User) Snapshot() UserInfo {
	return UserInfo{
		UserID:    u.userID,
		FirstName: u.firstName,
		LastName:  u.lastName,
		Email:     u.email,
		Comment:   u.comment,
		Enabled:   u.active,
		Expire:    u.expire,
		Groups:    slices.Clone(u.groups),
		Keys:      u.keys,
	}
}

// GetUser refreshes the user from the server. Only fields present in the
// reply are overwritten; on failure nothing changes.
func (u *User) GetUser(ctx context.Context, r resource.Requester, opts ...RequestOption) error {
	return u.Get(ctx, r, applyOptions(resource.JSONParts(), opts))
}

// Create registers the user. An empty password creates an account without
// one, which is only usable with realms that authenticate elsewhere.
func (u *User) Create(ctx context.Context, r resource.Requester, password string, opts ...RequestOption) error {
	parts := resource.JSONParts()
	if password != "" {
		parts.Body["password"] = password
	}
	return u.Post(ctx, r, applyOptions(parts, opts))
}

// ApplyChanges writes the local fields to the server.
func (u *User) ApplyChanges(ctx context.Context, r resource.Requester, opts ...RequestOption) error {
	return u.Put(ctx, r, applyOptions(resource.JSONParts(), opts))
}

// UpdatePassword changes the user's password.
func (u *User) UpdatePassword(ctx context.Context, r resource.Requester, oldPassword, newPassword string, opts ...RequestOption) error {
	if u.userID == "" {
		return ErrMissingUserID
	}
	if oldPassword == "" || newPassword == "" {
		return ErrPasswordRequired
	}

	parts := resource.JSONParts()
	parts.Body["userid"] = u.userID
	parts.Body["password"] = newPassword
	parts.Body["confirmation-password"] = oldPassword
	parts = applyOptions(parts, opts)

	resp := resource.Call(ctx, r, resource.VerbPut, passwordPath, parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("update password for %s: %w", u.userID, err)
	}
	return nil
}

// Delete removes the user from the server.
func (u *User) Delete(ctx context.Context, r resource.Requester, parts resource.Parts) error {
	if u.userID == "" {
		return ErrMissingUserID
	}
	resp := resource.Call(ctx, r, resource.VerbDelete, u.path(), parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("delete user %s: %w", u.userID, err)
	}
	return nil
}

// Remove deletes the user using default request parts.
func (u *User) Remove(ctx context.Context, r resource.Requester, opts ...RequestOption) error {
	return u.Delete(ctx, r, applyOptions(resource.JSONParts(), opts))
}

// Get reads the user with the given parts and merges the reply.
func (u *User) Get(ctx context.Context, r resource.Requester, parts resource.Parts) error {
	if u.userID == "" {
		return ErrMissingUserID
	}
	resp := resource.Call(ctx, r, resource.VerbGet, u.path(), parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("get user %s: %w", u.userID, err)
	}
	u.merge(resp.DataObject())
	return nil
}

// Post creates the user. Writable fields missing from parts.Body are filled
// from u; parts itself is left untouched.
func (u *User) Post(ctx context.Context, r resource.Requester, parts resource.Parts) error {
	if u.userID == "" {
		return ErrMissingUserID
	}
	parts.Body = u.fillBody(parts.Body)
	if _, ok := parts.Body["userid"]; !ok {
		parts.Body["userid"] = u.userID
	}
	resp := resource.Call(ctx, r, resource.VerbPost, usersPath, parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("create user %s: %w", u.userID, err)
	}
	return nil
}

// Put updates the user the same way Post fills its body, without userid.
func (u *User) Put(ctx context.Context, r resource.Requester, parts resource.Parts) error {
	if u.userID == "" {
		return ErrMissingUserID
	}
	parts.Body = u.fillBody(parts.Body)
	resp := resource.Call(ctx, r, resource.VerbPut, u.path(), parts)
	if err := resp.Err(); err != nil {
		return fmt.Errorf("update user %s: %w", u.userID, err)
	}
	return nil
}

func (u *User) path() string {
	return usersPath + "/" + url.PathEscape(u.userID)
}

// fillBody returns a copy of in with the writable user fields added. Keys
// already present in in are kept.
func (u *User) fillBody(in map[string]any) map[string]any {
	body := make(map[string]any, len(in)+8)
	maps.Copy(body, in)
	set := func(key string, value any) {
		if _, ok := body[key]; !ok {
			body[key] = value
		}
	}
	if u.comment != "" {
		set("comment", u.comment)
	}
	if u.email != "" {
		set("email", u.email)
	}
	if u.firstName != "" {
		set("firstname", u.firstName)
	}
	if u.lastName != "" {
		set("lastname", u.lastName)
	}
	if len(u.groups) > 0 {
		set("groups", strings.Join(u.groups, ","))
	}
	if u.keys != "" {
		set("keys", u.keys)
	}
	set("expire", u.expire)
	if u.active {
		set("enable", 1)
	} else {
		set("enable", 0)
	}
	return body
}

func (u *User) merge(data map[string]any) {
	if v, ok := asString(data["firstname"]); ok {
		u.firstName = v
	}
	if v, ok := asString(data["lastname"]); ok {
		u.lastName = v
	}
	if v, ok := asString(data["comment"]); ok {
		u.comment = v
	}
	if v, ok := asString(data["email"]); ok {
		u.email = v
	}
	if v, ok := asBool(data["enable"]); ok {
		u.active = v
	}
	if v, ok := asInt64(data["expire"]); ok {
		u.expire = v
	}
	if v, ok := asGroups(data["groups"]); ok {
		u.groups = v
	}
	if v, ok := asString(data["keys"]); ok {
		u.keys = v
	}
}
