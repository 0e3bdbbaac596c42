// Package keyring supplies key material to the container drivers.
//
// Firmware packages reference keys by short slot tags; the ring maps
// those tags to AES scrambling keys and RSA verification keys. A small
// set of community-known AES keys is built in, and additional or
// overriding keys load from a YAML key file. Missing keys are normal:
// the drivers fall back to extracting sections in stored form.
package keyring
