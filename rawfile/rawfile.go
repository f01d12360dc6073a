// Package rawfile reads and writes capture files holding one raw wire frame each.
//
// A capture file is a 32-byte little-endian header, the frame exactly as it
// came off the link, and a CRC-32 trailer over everything before it.
package rawfile

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/snksoft/crc"

	"github.com/nasa-jpl/dualread/linepair"
)

const (
	// Magic opens every capture file
	Magic = "LPRF"

	// Version is the header layout version written by this package
	Version = 1

	// Ext is the conventional file extension
	Ext = ".lpr"

	headerSize  = 32
	trailerSize = 4

	// MaxPayload bounds the payload length accepted by Read, 1 GiB
	MaxPayload = 1 << 30
)

var (
	// ErrBadMagic is returned when a file does not start with Magic
	ErrBadMagic = errors.New("rawfile: bad magic")

	// ErrVersion is returned for header versions this package cannot read
	ErrVersion = errors.New("rawfile: unsupported version")

	// ErrChecksum is returned when the CRC trailer does not match
	ErrChecksum = errors.New("rawfile: checksum mismatch")

	// ErrTruncated is returned when the file ends before the trailer
	ErrTruncated = errors.New("rawfile: truncated")

	crcTable = crc.NewTable(crc.CRC32)
)

// Frame is one captured raw frame and the mode it was captured in
type Frame struct {
	// Geometry is the decoded size of the frame
	Geometry linepair.Geometry

	// Format is the wire format of Data
	Format linepair.WireFormat

	// Time is when the frame was captured
	Time time.Time

	// Data is the raw wire frame, without padding
	Data []byte
}

func header(f Frame) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], Magic)
	binary.LittleEndian.PutUint16(h[4:6], Version)
	binary.LittleEndian.PutUint16(h[6:8], uint16(f.Format))
	binary.LittleEndian.PutUint32(h[8:12], uint32(f.Geometry.Width))
	binary.LittleEndian.PutUint32(h[12:16], uint32(f.Geometry.Height))
	var ts int64
	if !f.Time.IsZero() {
		ts = f.Time.UnixNano()
	}
	binary.LittleEndian.PutUint64(h[16:24], uint64(ts))
	binary.LittleEndian.PutUint32(h[24:28], uint32(len(f.Data)))
	return h
}

// Write streams f to w as a capture file
func Write(w io.Writer, f Frame) error {
	if len(f.Data) > MaxPayload {
		return errors.Errorf("rawfile: payload of %d bytes exceeds %d", len(f.Data), MaxPayload)
	}
	h := header(f)
	sum := crcTable.InitCrc()
	sum = crcTable.UpdateCrc(sum, h)
	sum = crcTable.UpdateCrc(sum, f.Data)
	trailer := make([]byte, trailerSize)
	binary.LittleEndian.PutUint32(trailer, crcTable.CRC32(sum))

	for _, b := range [][]byte{h, f.Data, trailer} {
		if _, err := w.Write(b); err != nil {
			return errors.Wrap(err, "rawfile: write")
		}
	}
	return nil
}

// Read parses one capture file from r.  The payload length is checked
// against the header, not against the geometry; decoding does that.
func Read(r io.Reader) (Frame, error) {
	var f Frame
	h := make([]byte, headerSize)
	if _, err := io.ReadFull(r, h); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return f, errors.Wrap(ErrTruncated, "header")
		}
		return f, errors.Wrap(err, "rawfile: read header")
	}
	if string(h[0:4]) != Magic {
		return f, errors.Wrapf(ErrBadMagic, "got %q", h[0:4])
	}
	if v := binary.LittleEndian.Uint16(h[4:6]); v != Version {
		return f, errors.Wrapf(ErrVersion, "version %d", v)
	}
	n := binary.LittleEndian.Uint32(h[24:28])
	if n > MaxPayload {
		return f, errors.Errorf("rawfile: payload of %d bytes exceeds %d", n, MaxPayload)
	}
	body := make([]byte, int(n)+trailerSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return f, errors.Wrapf(ErrTruncated, "expected %d payload bytes", n)
		}
		return f, errors.Wrap(err, "rawfile: read payload")
	}
	data, trailer := body[:n], body[n:]
	sum := crcTable.InitCrc()
	sum = crcTable.UpdateCrc(sum, h)
	sum = crcTable.UpdateCrc(sum, data)
	if got, want := crcTable.CRC32(sum), binary.LittleEndian.Uint32(trailer); got != want {
		return f, errors.Wrapf(ErrChecksum, "computed %08x, trailer %08x", got, want)
	}

	f.Format = linepair.WireFormat(binary.LittleEndian.Uint16(h[6:8]))
	f.Geometry = linepair.Geometry{
		Width:  int(binary.LittleEndian.Uint32(h[8:12])),
		Height: int(binary.LittleEndian.Uint32(h[12:16])),
	}
	if ts := int64(binary.LittleEndian.Uint64(h[16:24])); ts != 0 {
		f.Time = time.Unix(0, ts)
	}
	f.Data = data
	return f, nil
}

// ReadFile reads a capture file from disk
func ReadFile(path string) (Frame, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, err
	}
	f, err := Read(bytes.NewReader(b))
	if err != nil {
		return f, errors.Wrap(err, path)
	}
	return f, nil
}

// WriteFile writes a capture file to disk, replacing any existing file
func WriteFile(path string, f Frame) error {
	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	err = Write(fid, f)
	if cerr := fid.Close(); err == nil {
		err = cerr
	}
	return err
}
