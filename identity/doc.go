// Package identity wraps a third-party identity-provider sign-in SDK behind an
// injected capability.
//
// The SDK is loaded asynchronously by the host page, so [Loader] polls for it on a
// fixed interval with a bounded number of attempts and reports a terminal
// [StateUnavailable] once the bound is exceeded. It never polls forever.
package identity
