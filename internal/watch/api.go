package watch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// WatchResult carries the provider's answer to a watch call: the history
// cursor to resume reading changes from and when the watch lapses.
type WatchResult struct {
	HistoryID string
	Expiry    time.Time
}

// ProviderAPI is the slice of the mail provider's API the lifecycle needs.
// Implementations build a service per call from the given token source; no
// per-account client is cached.
type ProviderAPI interface {
	// Watch registers (or re-registers) inbox change notifications to the
	// given Pub/Sub topic on behalf of the authorized mailbox.
	Watch(ctx context.Context, ts oauth2.TokenSource, topic string) (*WatchResult, error)

	// Stop cancels change notifications for the authorized mailbox.
	Stop(ctx context.Context, ts oauth2.TokenSource) error
}

// gmailAPI implements ProviderAPI against the Gmail v1 API.
type gmailAPI struct{}

// NewGmailAPI returns the Gmail-backed ProviderAPI.
func NewGmailAPI() ProviderAPI {
	return gmailAPI{}
}

func (gmailAPI) Watch(ctx context.Context, ts oauth2.TokenSource, topic string) (*WatchResult, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	resp, err := svc.Users.Watch("me", &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("watch call failed: %w", err)
	}

	return &WatchResult{
		HistoryID: strconv.FormatUint(resp.HistoryId, 10),
		// Expiration is reported in milliseconds since the epoch.
		Expiry: time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

func (gmailAPI) Stop(ctx context.Context, ts oauth2.TokenSource) error {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return fmt.Errorf("failed to create Gmail service: %w", err)
	}

	if err := svc.Users.Stop("me").Context(ctx).Do(); err != nil {
		return fmt.Errorf("stop call failed: %w", err)
	}
	return nil
}
