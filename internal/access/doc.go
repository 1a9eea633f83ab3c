// Package access implements the /access resources of the PVE API: login
// tickets and users.
//
// Write operations on users need an authenticated ticket. Generate one with
// Ticket.GenerateTicket and pass it through WithTicket:
//
//	t := access.NewTicket()
//	if err := t.GenerateTicket(ctx, sess); err != nil {
//		return err
//	}
//	u := access.NewUserWithID("alice@pve")
//	u.SetEmail("alice@example.com")
//	err := u.Create(ctx, sess, "initial-password", access.WithTicket(t))
package access
