// Package container defines the format-agnostic surface shared by all
// firmware container formats: the Driver contract every format version
// implements, the Registry that sniffs an image and picks a driver, the
// section descriptor model, and the parse error taxonomy.
//
// A Driver answers three questions about an image: what does the header
// say (ParseHeader), which sections does it carry (EnumerateSections),
// and what are one section's decoded bytes (DecodeSection). Everything
// above this package (the extraction engine, the CLI) speaks only
// this contract; adding a format version means adding a driver package
// and registering it, nothing else changes.
//
// Section descriptors are validated when they are built: a descriptor
// that exists always points inside the image. Checksum mismatch during
// decode is a value (VerifyStatus), not an error, because corrupted
// dumps are a routine input for this tool and must still extract.
package container
