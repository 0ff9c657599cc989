// Package config defines the dispatchd configuration surface and its
// loading pipeline: YAML file, then defaults, then DISPATCH_* environment
// overrides, then validation.
//
// The provider list is ordered; a provider whose credential reference
// cannot be resolved at startup is excluded from the active set rather than
// failing startup. An empty active set is the subsystem's only fatal
// configuration error.
package config
