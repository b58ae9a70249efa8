// Package history keeps a local audit trail of air conditioner state
// changes in SQLite.
//
// Every decoded status that differs from the previous one for the same
// device is stored as a JSON snapshot. The log is write-only from the
// bridge's point of view: it is read by the HTTP status API and by
// operators, never used to restore device state at startup. Old rows are
// pruned on a fixed schedule according to the configured retention.
package history
