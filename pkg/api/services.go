package api

import "context"

// ContactSource yields the campaign's contacts. Identifiers are expected to be
// normalized and deduplicated already, in a stable order.
type ContactSource interface {
	List(ctx context.Context) ([]string, error)
}

// Ledger loads and durably stores the campaign Record.
//
// Load returns an empty Record when nothing was stored yet. Save overwrites
// whatever was stored before; when it returns nil the Record must survive a
// process crash.
type Ledger interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

// GroupMembership adds a single contact to a group.
type GroupMembership interface {
	Add(ctx context.Context, groupID, contactID string) error
}

// InviteService returns a shareable invite link for a group.
type InviteService interface {
	InviteLink(ctx context.Context, groupID string) (string, error)
}

// MessageDelivery sends a text payload to one recipient.
type MessageDelivery interface {
	Send(ctx context.Context, contactID, payload string) error
}

// Services groups the external collaborators bound to one messaging session.
type Services struct {
	Membership GroupMembership
	Invites    InviteService
	Delivery   MessageDelivery
}
