// Package alert defines the domain model shared across pulse: the
// alert projection owned by the authoritative Alert Store, the stream
// event envelope, derived SLA annotations, actors, and filter
// expressions.
package alert
