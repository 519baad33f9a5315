// Package models contains GORM persistence models that map to database tables.
// Domain types stay free of ORM tags; each model converts to and from its
// domain counterpart with ToDomain and a FromDomain constructor.
//
// Tables:
//   - plans: the plan catalog (plan.go)
//   - subscriptions: one row per business (subscription.go)
//   - payment_transactions: online and offline payment attempts (transaction.go)
//   - users: account directory read by the engine (user.go)
//   - notification_outbox: queued notifications (outbox.go)
package models
