// Package protocol owns the Q-Lang wire contract.
//
// Ownership boundary:
// - instruction/response fixed-header frames
// - metadata block and envelope
// - batch aggregation envelope
//
// Instruction frame (base format, no magic, version or checksum):
//
//	offset 0..3 : command_id   (uint32, little-endian)
//	offset 4    : context_flag (uint8)
//	offset 5..N : payload      (raw bytes, length = frame_length - 5)
//
// Response frame:
//
//	offset 0..3 : command_id   (uint32, little-endian)
//	offset 4    : context_flag (uint8)
//	offset 5    : status       (uint8)
//	offset 6..N : result       (raw bytes, length = frame_length - 6)
//
// Batch envelope:
//
//	offset 0..3 : entry count (uint32, little-endian)
//	repeated    : entry length (uint32, little-endian) then entry frame bytes
//
// Codec functions hold no state between calls and are safe for concurrent use.
// Versioned transport messages live in package wire.
package protocol
