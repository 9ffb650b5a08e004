// Package logging provides the slog setup shared by all commands plus
// attribute helpers that keep log field names consistent and keep token
// material and raw mailbox addresses out of log output.
package logging
