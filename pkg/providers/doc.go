// Package providers defines the provider abstraction for the dispatch core.
//
// A provider is one interchangeable upstream completion (or extraction)
// service. Each provider is described by an immutable Descriptor loaded from
// configuration at startup, and is reached through an Invoker, which performs
// exactly one attempt against exactly one provider and classifies the outcome.
//
// The Invoker never returns a Go error to its caller: every failure mode
// (timeout, rate limit, server error, malformed response, client error) is
// captured as data in an AttemptResult. Retrying across providers is solely
// the dispatcher's responsibility; invokers never retry internally.
//
// New vendors are added by implementing the Invoker interface, not by
// modifying dispatch logic.
package providers
