// Package klaviyo talks to the vendor's client-side subscription API.
//
// Client.Submit posts a SubscriptionPayload with the dated revision header
// picked from a Revisions table, treating 202 Accepted as the only success
// and retrying transient failures with exponential backoff. EventQueue holds
// tracking events until a Tracker is ready and never reports failures to the
// caller.
package klaviyo
