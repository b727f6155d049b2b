// Package quota implements the admission policy for device fleets.
//
// A Limit caps how many active devices an organisation may hold at
// once. Policy is evaluated against live counts: callers count active
// records at decision time and ask Allows whether one more admission
// fits. Nothing here touches storage, so a limit change on the
// organisation takes effect on the next evaluation without any
// migration of existing records.
//
// Plans provide the default limit for newly created organisations;
// the stored per-organisation limit is always authoritative after
// creation.
package quota
