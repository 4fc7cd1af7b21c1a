// Package video implements the video_filter pipeline: it maps a preset name
// and an intensity to an ffmpeg filter chain, degrades the chain to match
// the filters the local ffmpeg build actually supports, runs the encode, and
// reports fractional progress parsed from ffmpeg's diagnostic stream.
package video
