// Package models contains the GORM persistence models of the hub. Domain
// types stay free of ORM tags; each model converts to and from its domain
// type.
//
//   - unified.go: tenants, connections, records, overlay, snapshots, audit, webhook endpoints
//   - outbox.go: transactional outbox entries
package models
