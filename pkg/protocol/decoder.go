package protocol

import "bytes"

// Decoder turns a byte stream into records. It buffers partial frames
// between calls to Feed, so transports may hand over arbitrary slices.
//
// A Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	buf []byte
	// set while skipping the tail of an oversized frame
	discarding bool
}

// NewDecoder creates an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends bytes read from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
	if !d.discarding && len(d.buf) > MaxFrameBytes && bytes.IndexByte(d.buf, Delimiter) < 0 {
		d.buf = d.buf[:0]
		d.discarding = true
	}
}

// Buffered returns the number of bytes waiting for a delimiter.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next record in the buffer.
//
// ok is false with a nil error when more bytes are needed. A non-nil error
// is always a *MalformedRecordError; the offending frame has already been
// skipped and Next may be called again.
func (d *Decoder) Next() (rec Record, ok bool, err error) {
	if d.discarding {
		i := bytes.IndexByte(d.buf, Delimiter)
		if i < 0 {
			d.buf = d.buf[:0]
			return nil, false, nil
		}
		d.consume(i + 1)
		d.discarding = false
		return nil, false, malformed("", "frame exceeds %d bytes", MaxFrameBytes)
	}

	for {
		advance, rec, err := Decode(d.buf)
		if advance == 0 && err == nil {
			return nil, false, nil
		}
		d.consume(advance)
		if err != nil {
			return nil, false, err
		}
		if rec != nil {
			return rec, true, nil
		}
	}
}

func (d *Decoder) consume(n int) {
	rest := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:rest]
}
