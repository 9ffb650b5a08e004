package watch

import "time"

// RenewalResult is the per-account outcome of one renewal attempt. A failed
// renewal is data, not an error: the batch carries on and the result rows
// are reported downstream.
type RenewalResult struct {
	AccountID      string     `json:"accountId"`
	MailboxAddress string     `json:"mailboxAddress"`
	Success        bool       `json:"success"`
	NewExpiry      *time.Time `json:"newExpiry,omitempty"`
	Error          string     `json:"error,omitempty"`
	RenewedAt      time.Time  `json:"renewedAt"`
}

// BatchSummary is the accounting for one renewal batch run. Results are in
// the same order as the accounts selected for the batch.
type BatchSummary struct {
	TotalProcessed int             `json:"totalProcessed"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Results        []RenewalResult `json:"results"`
}
