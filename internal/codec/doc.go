// Package codec converts object descriptors to and from their wire
// encodings and parses aggregation documents.
//
// Two encodings share one versioned schema:
//
//   - CBOR (the default) for descriptors exchanged with the coordinator
//     and peers, using Core Deterministic Encoding so the same descriptor
//     always produces identical bytes.
//   - YAML for descriptors written by hand and read by the CLI.
//
// Every supported schema version decodes into the single canonical
// mn.Descriptor. Encoding always writes CurrentVersion.
package codec
