package wireframe

import "bytes"

// Decoder accumulates bytes from a stream and yields complete frames,
// resynchronizing one byte at a time on corruption. It is not safe for
// concurrent use; the connection manager owns a single decoder per
// socket and feeds it from its read loop.
type Decoder struct {
	buf      []byte
	validate bool
}

// NewDecoder returns an empty decoder. When validateFrames is true
// (the default for a real controller link), the decoder strips
// embedded NULs on Feed and surfaces a FrameError for every malformed
// length field or out-of-range length it resyncs past. When false, it
// still resyncs past the same corruption so it can never stall, but
// does so silently — trusting the peer's framing and treating
// resync events as noise rather than something worth reporting.
func NewDecoder(validateFrames bool) *Decoder {
	return &Decoder{validate: validateFrames}
}

// Feed appends newly read bytes to the internal buffer, stripping
// embedded NULs first when validation is enabled — some controllers
// and simulators emit stray NUL bytes mid-stream.
func (d *Decoder) Feed(data []byte) {
	if d.validate && bytes.IndexByte(data, 0) >= 0 {
		data = bytes.ReplaceAll(data, []byte{0}, nil)
	}
	d.buf = append(d.buf, data...)
}

// Reset discards any buffered, not-yet-framed bytes. Called on
// disconnect so a stale partial frame doesn't bleed into the next
// connection.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}

// Decode drains as many complete frames as are currently buffered,
// collecting recoverable FrameErrors along the way. It never returns
// more than one error per byte consumed during resync, and it never
// blocks: if the buffer holds an incomplete frame it simply stops and
// waits for more bytes on the next Feed.
func (d *Decoder) Decode() ([]Frame, []FrameError) {
	var frames []Frame
	var errs []FrameError

	for {
		if len(d.buf) < lengthFieldSize {
			return frames, errs
		}
		lengthBytes := d.buf[:lengthFieldSize]
		if !allDigits(lengthBytes) {
			if d.validate {
				errs = append(errs, FrameError{Type: ErrInvalidLength, Detail: string(lengthBytes)})
			}
			d.buf = d.buf[1:]
			continue
		}
		total := atoiSafe(string(lengthBytes))
		if total < MinLength || total > MaxLength {
			if d.validate {
				errs = append(errs, FrameError{Type: ErrLengthOutOfRange, Detail: string(lengthBytes)})
			}
			d.buf = d.buf[1:]
			continue
		}
		if len(d.buf) < total {
			return frames, errs
		}

		body := d.buf[lengthFieldSize:total]
		d.buf = d.buf[total:]

		if len(body) < headerSize {
			errs = append(errs, FrameError{Type: ErrPayloadParseError, Detail: "body shorter than header"})
			continue
		}
		header := decodeHeader(body)
		payload := body[headerSize:]
		frames = append(frames, Frame{Header: header, Payload: payload})
	}
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
