// Package logging provides structured logging for the rotortool CLIs.
//
// This package wraps zap with convenience functions for the logging
// patterns used throughout the toolkit. Output is silent by default so
// command output stays clean; set ROTORTOOL_LOG_LEVEL (or pass a level
// to Initialize) to see what the extractor is doing:
//
//	ROTORTOOL_LOG_LEVEL=debug rotortool extract firmware.bin --out out/
//
// Log records go to stderr so they never mix with manifests or styled
// command output on stdout. LogRawBytes adds hex and ASCII dumps of a
// byte range at debug level, which is the fastest way to eyeball a
// header that refuses to parse.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
