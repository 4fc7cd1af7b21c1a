// Package falai adapts the fal.ai synchronous image endpoints to the
// generation.Provider interface. fal returns the generated media inline in
// the HTTP response, so a call here is a single POST with no polling.
package falai
