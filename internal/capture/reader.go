// Package capture reads recorded packet captures in pcap or pcapng format.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pcapsift/internal/core"
)

// pcapng files start with a Section Header Block.
const ngSectionHeaderMagic = 0x0A0D0D0A

type packetSource interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader yields the raw frames of one capture file in capture order.
type Reader struct {
	path   string
	file   *os.File
	source packetSource
	format string
}

// Open opens a capture file and detects its format from the magic number.
// Any failure wraps core.ErrCaptureOpen.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrCaptureOpen, path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: file too short for a capture header", core.ErrCaptureOpen, path)
	}

	r := &Reader{path: path, file: f}
	if binary.BigEndian.Uint32(magic) == ngSectionHeaderMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", core.ErrCaptureOpen, path, err)
		}
		r.source, r.format = ng, "pcapng"
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %w", core.ErrCaptureOpen, path, err)
		}
		r.source, r.format = pr, "pcap"
	}
	return r, nil
}

// Next returns the next frame. It returns io.EOF once the capture is
// exhausted; a frame cut short by the end of the file is reported as
// io.ErrUnexpectedEOF.
func (r *Reader) Next() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.source.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("read packet from %s: %w", r.path, err)
	}
	return data, ci, nil
}

// LinkType returns the link type of the capture's first interface.
func (r *Reader) LinkType() layers.LinkType {
	return r.source.LinkType()
}

// Format returns "pcap" or "pcapng".
func (r *Reader) Format() string {
	return r.format
}

// Path returns the file the reader was opened on.
func (r *Reader) Path() string {
	return r.path
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadAll returns the raw bytes of a capture file. URL extraction scans the
// file contents directly, not the decoded frames.
func ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrCaptureOpen, path, err)
	}
	return data, nil
}
