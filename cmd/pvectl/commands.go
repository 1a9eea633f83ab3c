package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/marcus-qen/pvego/internal/access"
	"github.com/marcus-qen/pvego/internal/session"
	"github.com/marcus-qen/pvego/internal/ticketcache"
)

// ticketStore caches login tickets between invocations.
type ticketStore interface {
	Get(key string) (*access.Ticket, error)
	Put(key string, t *access.Ticket) (*ticketcache.Entry, error)
	Delete(key string) error
}

func runTicket(ctx context.Context, env commandEnv, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: pvectl ticket")
	}

	t, err := login(ctx, env)
	if err != nil {
		return err
	}

	if env.cfg.jsonOutput {
		return writeJSON(env.out, map[string]string{
			"username":            t.GetUsername(),
			"ticket":              t.GetTicket(),
			"CSRFPreventionToken": t.GetCSRFPreventionToken(),
		})
	}

	fmt.Fprintf(env.out, "Username: %s\n", t.GetUsername())
	fmt.Fprintf(env.out, "Ticket: %s\n", t.GetTicket())
	fmt.Fprintf(env.out, "CSRF Token: %s\n", t.GetCSRFPreventionToken())
	return nil
}

func runUser(ctx context.Context, env commandEnv, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pvectl user get|create|update|delete|passwd <id>")
	}
	sub, userID, rest := args[0], args[1], args[2:]

	switch sub {
	case "get", "create", "update", "delete", "passwd":
	default:
		return fmt.Errorf("unknown user command: %s", sub)
	}

	flags, err := parseUserFlags(rest)
	if err != nil {
		return err
	}
	if sub != "create" && sub != "update" && flags.any() {
		return fmt.Errorf("usage: pvectl user %s <id>", sub)
	}
	if sub == "update" && flags.password != nil {
		return fmt.Errorf("--password is only valid for create; use passwd")
	}

	// Collect passwords before talking to the server.
	var password, oldPassword string
	switch {
	case sub == "create" && flags.password != nil:
		password = *flags.password
	case sub == "create":
		if password, err = promptNewPassword(env, "Password: "); err != nil {
			return err
		}
	case sub == "passwd":
		if oldPassword, err = env.prompt("Current password: "); err != nil {
			return err
		}
		if password, err = promptNewPassword(env, "New password: "); err != nil {
			return err
		}
	case sub == "update" && !flags.any():
		return fmt.Errorf("user update needs at least one flag")
	}

	return withTicket(ctx, env, func(auth access.RequestOption) error {
		u := access.NewUserWithID(userID)
		switch sub {
		case "get":
			if err := u.GetUser(ctx, env.requester, auth); err != nil {
				return err
			}
			return printUser(env, u.Snapshot())

		case "create":
			u.Activate()
			flags.apply(u)
			if err := u.Create(ctx, env.requester, password, auth); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "User %s created\n", userID)
			return nil

		case "update":
			// Enable and expire are always written, so start from the server state.
			if err := u.GetUser(ctx, env.requester, auth); err != nil {
				return err
			}
			flags.apply(u)
			if err := u.ApplyChanges(ctx, env.requester, auth); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "User %s updated\n", userID)
			return nil

		case "delete":
			if err := u.Remove(ctx, env.requester, auth); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "User %s deleted\n", userID)
			return nil

		default: // passwd
			if err := u.UpdatePassword(ctx, env.requester, oldPassword, password, auth); err != nil {
				return err
			}
			fmt.Fprintf(env.out, "Password for %s changed\n", userID)
			return nil
		}
	})
}

// withTicket runs fn with a cached or fresh ticket. A cached ticket the
// server rejects is dropped and fn is retried once with a fresh login.
func withTicket(ctx context.Context, env commandEnv, fn func(access.RequestOption) error) error {
	if env.tickets != nil {
		cached, err := env.tickets.Get(env.cacheKey)
		switch {
		case err == nil:
			err = fn(access.WithTicket(cached))
			if !session.IsStatus(err, http.StatusUnauthorized) {
				return err
			}
			env.logger.Debug("cached ticket rejected, logging in again", zap.String("key", env.cacheKey))
			if err := env.tickets.Delete(env.cacheKey); err != nil {
				env.logger.Debug("failed to drop rejected ticket", zap.String("key", env.cacheKey), zap.Error(err))
			}
		case !errors.Is(err, ticketcache.ErrNotFound):
			env.logger.Debug("ticket cache unusable, logging in", zap.String("key", env.cacheKey), zap.Error(err))
		}
	}

	t, err := login(ctx, env)
	if err != nil {
		return err
	}
	return fn(access.WithTicket(t))
}

// login generates a fresh ticket and caches it.
func login(ctx context.Context, env commandEnv) (*access.Ticket, error) {
	t := access.NewTicket()
	if err := t.GenerateTicket(ctx, env.requester); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if env.tickets != nil {
		if _, err := env.tickets.Put(env.cacheKey, t); err != nil {
			env.logger.Warn("failed to cache ticket", zap.Error(err))
		}
	}
	return t, nil
}

func promptNewPassword(env commandEnv, label string) (string, error) {
	first, err := env.prompt(label)
	if err != nil {
		return "", err
	}
	second, err := env.prompt("Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", fmt.Errorf("passwords do not match")
	}
	return first, nil
}

// userFlags records only the flags that were given.
type userFlags struct {
	email    *string
	comment  *string
	first    *string
	last     *string
	keys     *string
	groups   []string
	setGroup bool
	expire   *int64
	enabled  *bool
	password *string
}

func (f userFlags) any() bool {
	return f.email != nil || f.comment != nil || f.first != nil || f.last != nil ||
		f.keys != nil || f.setGroup || f.expire != nil || f.enabled != nil || f.password != nil
}

func (f userFlags) apply(u *access.User) {
	if f.email != nil {
		u.SetEmail(*f.email)
	}
	if f.comment != nil {
		u.SetComment(*f.comment)
	}
	if f.first != nil {
		u.SetFirstName(*f.first)
	}
	if f.last != nil {
		u.SetLastName(*f.last)
	}
	if f.keys != nil {
		u.SetKeys(*f.keys)
	}
	if f.setGroup {
		u.SetGroups(f.groups)
	}
	if f.expire != nil {
		u.SetExpirationDate(*f.expire)
	}
	if f.enabled != nil {
		if *f.enabled {
			u.Activate()
		} else {
			u.Disable()
		}
	}
}

func parseUserFlags(args []string) (userFlags, error) {
	var f userFlags
	value := func(i int) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", args[i])
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--enable", "--disabled":
			enabled := args[i] == "--enable"
			f.enabled = &enabled
			continue
		case "--email", "--comment", "--first", "--last", "--keys", "--groups", "--expire", "--password":
		default:
			return f, fmt.Errorf("unknown flag: %s", args[i])
		}

		v, err := value(i)
		if err != nil {
			return f, err
		}
		switch args[i] {
		case "--email":
			f.email = &v
		case "--comment":
			f.comment = &v
		case "--first":
			f.first = &v
		case "--last":
			f.last = &v
		case "--keys":
			f.keys = &v
		case "--password":
			f.password = &v
		case "--groups":
			f.groups = parseList(v)
			f.setGroup = true
		case "--expire":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return f, fmt.Errorf("--expire must be a unix timestamp, got %q", v)
			}
			f.expire = &n
		}
		i++
	}
	return f, nil
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := map[string]struct{}{}
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	return out
}

