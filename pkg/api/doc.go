// Package api contains the core building blocks shared by the enrollment
// orchestrator, its storage backends and its adapters.
//
// Most users interact with the higher-level enroller package, which re-exports
// selected types and constructors from this package. The api package is
// intended for custom integrations: a different messaging binding, a
// different ledger backend, or a custom observer.
//
// # Concepts
//
//   - Record: the persisted progress of a campaign (added / linked sets).
//   - Ledger: loads and durably stores a Record.
//   - ContactSource: yields normalized contact identifiers.
//   - Services: the group membership, invite and message delivery
//     collaborators bound to one messaging session.
//   - Observer: receives cycle and action events.
//
// # Record
//
// A Record holds two ordered lists of identifiers. Membership in Added is
// permanent. A contact whose direct addition failed is moved to Linked, and is
// never offered a direct addition again. A contact present in either list is
// processed and will not be contacted again by any later cycle.
//
// # Observability
//
// The Observer interface is used by the orchestrator to report lifecycle
// events. Ready-made implementations cover structured logging with log/slog,
// basic in-memory counters and fan-out to several observers.
package api
