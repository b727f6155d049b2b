// Package device provides the device store for MachineID Core.
//
// The store is the per-organisation record of every device identity
// that has ever registered, together with its lifecycle state. It is
// the single source of truth for admission decisions: quota counts
// are derived from it on every evaluation, never cached.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Device Store                          │
//	│                                                              │
//	│  ┌──────────────────┐          ┌──────────────────┐          │
//	│  │    Repository    │          │      Types       │          │
//	│  │  (repository.go) │          │    (types.go)    │          │
//	│  │                  │          │                  │          │
//	│  │ • Atomic admit   │          │ • Record, State  │          │
//	│  │ • Revoke/restore │          │ • ID validation  │          │
//	│  │ • Live counts    │          │ • Transitions    │          │
//	│  └──────────────────┘          └──────────────────┘          │
//	│           │                                                  │
//	└───────────│──────────────────────────────────────────────────┘
//	            ▼
//	   ┌──────────────────────┐
//	   │   SQLite Database    │
//	   │   (devices table)    │
//	   └──────────────────────┘
//
// # Lifecycle
//
// A device identity is in exactly one of two states once known:
//
//   - active: registered and counted against the organisation's limit
//   - revoked: explicitly parked; keeps its history, frees its slot
//
// Identities the store has never seen are simply absent. Registering
// an absent identity creates it; registering a revoked one restores
// it (re-checking quota); registering an active one is a no-op.
//
// # Concurrency
//
// Admit runs its read-count-decide-write sequence inside a single
// immediate transaction. Combined with the one-connection pool this
// serialises all admissions, so two concurrent registers can never
// both see the last free slot.
package device
