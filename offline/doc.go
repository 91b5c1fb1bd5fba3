// Package offline implements the offline cache controller for the praktikum
// gateway. It intercepts outbound HTTP requests as an http.RoundTripper and
// serves them under one of three strategies (network-first, cache-first,
// stale-while-revalidate) depending on the resource class, keeps exactly one
// versioned cache generation live, and exposes a control channel plus push
// notification delivery.
package offline
