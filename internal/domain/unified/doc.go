// Package unified holds the canonical ("unified") model shared by every
// entity service: the schema registry, canonical records with their overlay
// fields and raw provider snapshots, audit events, pagination cursors, the
// connector port, and the unification engine that translates between
// canonical and provider-native shapes.
//
// The package follows Ports & Adapters. Connectors, repositories and blob
// storage are declared here as interfaces and implemented under
// internal/infrastructure.
package unified
