// Package models defines the data model for the transfer daemon.
//
// A [Task] is one requested share transfer moving through the
// pending → running → terminal state machine. A [Session] is a
// per-provider credential snapshot derived from browser cookies.
// Both round-trip through JSON and the task store unchanged.
package models
