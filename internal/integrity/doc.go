// Package integrity implements the checksum and cipher primitives the
// container drivers share: the CRC-16 used for header checksums, digest
// verification for section payloads, AES-CBC section scrambling, and
// RSA signature checks for signed headers.
//
// Verification functions report mismatch as a boolean, not an error;
// a failed checksum on externally produced firmware is an expected
// outcome the caller records, not a fault.
package integrity
