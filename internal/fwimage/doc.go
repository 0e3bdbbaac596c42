// Package fwimage holds the raw bytes of one firmware update package.
//
// An Image is loaded once, read through bounds-checked accessors by the
// container drivers, and closed when the extraction run that owns it
// finishes. Nothing in this package knows about container formats.
package fwimage
