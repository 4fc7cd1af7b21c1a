// Package replicate adapts the Replicate predictions API to the
// generation.Provider interface. Unlike fal, Replicate is handle-based: a
// POST creates a prediction, and the result is obtained by polling its
// status until it reaches a terminal state or the poll budget runs out.
package replicate
