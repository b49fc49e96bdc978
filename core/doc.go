// Package core contains the shared domain types of the concierge
// orchestration core: messages and their polymorphic content parts,
// per-thread conversation state, sequence-numbered checkpoints, gates and
// authenticated principals. All other packages depend on core; core depends
// on nothing but the standard library and uuid.
package core
