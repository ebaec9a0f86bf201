// Package core contains the OAuth linking domain: flow state, the coordinator
// that drives a single linking attempt, and the contracts adapters implement.
// Lower-level adapters must depend on this package; core must not depend on
// transport-specific or storage-specific adapters.
package core
