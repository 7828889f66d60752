// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and match with errors.Is.
var (
	// Capture input errors
	ErrCaptureOpen = errors.New("pcapsift: cannot open capture")

	// Packet decoding errors. A skipped frame never fails a run.
	ErrDecodeSkip         = errors.New("pcapsift: frame skipped")
	ErrPacketTooShort     = errors.New("pcapsift: packet too short")
	ErrUnsupportedProto   = errors.New("pcapsift: unsupported protocol")
	ErrFragmentIncomplete = errors.New("pcapsift: waiting for more fragments")

	// IP reassembly errors
	ErrReassemblyLimit = errors.New("pcapsift: fragment reassembly limit exceeded")

	// Artifact export errors
	ErrArtifactIO      = errors.New("pcapsift: artifact write failed")
	ErrInvalidIdentity = errors.New("pcapsift: no usable file name for artifact")

	// Packaging errors
	ErrArchive     = errors.New("pcapsift: archive creation failed")
	ErrMissingFile = errors.New("pcapsift: manifest file missing")

	// Purge errors
	ErrNotExist     = errors.New("pcapsift: directory does not exist")
	ErrNotDirectory = errors.New("pcapsift: path is not a directory")

	// Configuration errors
	ErrConfigInvalid = errors.New("pcapsift: invalid configuration")
)
