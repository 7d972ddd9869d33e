// Package domain holds the core value types shared across the tender-monitor
// pipeline: tenders, filters, users, notifications and their closed
// enumerations. It has no dependencies and no behaviour beyond invariants on
// the types themselves.
package domain
