// Package models contains GORM persistence models that map to database tables.
// Domain records in internal/domain/edge carry no ORM tags; each model here has a
// ToDomain method and a ...FromDomain constructor.
//
// Files:
//   - edge.go: synchronized records (assets, customers, entity views, users, credentials)
//   - outbox.go: uplink messages waiting for transport delivery
package models
