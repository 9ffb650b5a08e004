// Package watch owns the mailbox push-subscription lifecycle: establishing
// a provider watch after registration, renewing watches approaching expiry
// in concurrent batches, and tearing them down on revocation.
package watch
