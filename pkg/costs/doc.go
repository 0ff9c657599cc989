// Package costs estimates per-attempt spend from request/response sizes.
//
// Pricing is expressed in USD per 1000 characters of prompt and completion,
// keyed by provider ID with a catch-all default. Estimation is strictly
// post-hoc: it informs reporting and audit records and never blocks or
// influences a dispatch decision.
//
// The table is safe for concurrent use and supports hot reload, either
// programmatically through Update or from a watched pricing file.
package costs
