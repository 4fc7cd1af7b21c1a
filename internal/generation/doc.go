// Package generation drives the AI image-generation pipeline: provider
// adapters over interchangeable external backends, a reusable retry policy,
// primary-to-fallback failover, re-hosting of generated media, and the
// batch fan-out for avatar jobs. It abstracts the details of each backend's
// request/response shape so the worker stays coupled only to the Provider
// interface.
package generation
