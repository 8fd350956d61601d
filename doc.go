// Package enroller grows a chat group from a list of contacts, a few at a
// time.
//
// The work is split into cycles. Each cycle:
//
//  1. reads the contact list,
//  2. drops every contact the Ledger already records as processed,
//  3. adds the first AddQuota pending contacts to the group directly,
//  4. fetches the group's invite link once,
//  5. sends the link to the first LinkQuota pending contacts that were not
//     added in step 3, including those whose direct addition failed,
//  6. waits for the cooldown.
//
// Every action is followed by a randomized pause, and only one action is in
// flight at a time. The Ledger is rewritten after each action, so a process
// that crashes or is stopped resumes where it left off without contacting
// anyone twice. A contact whose direct addition fails is recorded as handled
// by link and is never added directly again.
//
// # Collaborators
//
// The Orchestrator depends only on small interfaces:
//
//   - ContactSource yields normalized contact IDs in a stable order
//   - Ledger loads and stores the Record of added and linked contacts
//   - GroupMembership, InviteService and MessageDelivery talk to the
//     messaging platform and are grouped in Services
//
// The enroller command binds them to a contacts spreadsheet, a JSON or SQLite
// ledger and an HTTP messaging gateway.
//
// # Observers
//
// Progress is reported through an Observer. LoggingObserver writes structured
// slog records, BasicMetrics keeps in-process counters, and
// NewCompositeObserver fans out to several of them.
package enroller
