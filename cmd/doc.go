// Package cmd wires the mailwatch CLI: serve runs the HTTP and metrics
// servers, renew runs one watch-renewal batch (cron-friendly), version
// prints build information.
package cmd
