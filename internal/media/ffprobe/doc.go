// Package ffprobe wraps the ffprobe binary for header-only media inspection.
package ffprobe
