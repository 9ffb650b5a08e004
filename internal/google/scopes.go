package google

import (
	gmail "google.golang.org/api/gmail/v1"
	goauth2 "google.golang.org/api/oauth2/v2"
)

// Scopes is the fixed scope list requested during the handshake. Read,
// send, compose and modify cover the delegated mailbox operations; the two
// userinfo scopes let the callback resolve the authoritative mailbox
// address from the profile endpoint instead of trusting client input.
var Scopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	gmail.GmailComposeScope,
	gmail.GmailModifyScope,
	goauth2.UserinfoEmailScope,
	goauth2.UserinfoProfileScope,
}
