// Package webhooks contains webhook signature verification and event-to-action
// dispatch.
//
// Verification always runs against the untransformed request bytes; any
// re-serialization upstream breaks the signature. Dispatch optionally fences
// deliveries through a claim ledger (pending/retry_ready -> processing ->
// processed) so redelivered events do not issue duplicate licenses.
package webhooks
