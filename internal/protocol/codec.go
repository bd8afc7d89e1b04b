package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// HeaderSize is the length of the big-endian frame length prefix.
const HeaderSize = 4

// DefaultMaxFrameSize bounds a frame body when no explicit limit is given.
const DefaultMaxFrameSize = 4096

var (
	// ErrEmptyFrame is returned for a frame that declares a zero-length body.
	ErrEmptyFrame = errors.New("protocol: empty frame")

	// ErrFrameTooLarge is returned when a frame exceeds the decoder limit.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

// IsTerminal reports whether err leaves the stream unusable. Only
// ErrUnrecognized keeps a stream alive; every other read error ends it.
func IsTerminal(err error) bool {
	return err != nil && !errors.Is(err, ErrUnrecognized)
}

// Frame prefixes body with its length.
func Frame(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, ErrEmptyFrame
	}
	if uint64(len(body)) > math.MaxUint32 {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// Encode marshals and frames m in one step.
func Encode(m Message) ([]byte, error) {
	body, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	return Frame(body)
}

// Encoder writes framed messages to a stream. It is not safe for
// concurrent use.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes m as one frame.
func (e *Encoder) Encode(m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = e.w.Write(frame)
	return err
}

// Decoder reads framed messages from a stream. It is not safe for
// concurrent use.
type Decoder struct {
	r       *bufio.Reader
	maxSize uint32
}

// NewDecoder returns a Decoder reading from r that rejects bodies larger
// than maxSize bytes. A non-positive maxSize selects DefaultMaxFrameSize.
func NewDecoder(r io.Reader, maxSize int64) *Decoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	if maxSize > math.MaxUint32 {
		maxSize = math.MaxUint32
	}
	return &Decoder{r: bufio.NewReader(r), maxSize: uint32(maxSize)}
}

// ReadFrame returns the next frame body.
func (d *Decoder) ReadFrame() ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if size > d.maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFrameTooLarge, size, d.maxSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Decode reads and decodes the next message. A returned ErrUnrecognized
// leaves the decoder positioned at the following frame.
func (d *Decoder) Decode() (Message, error) {
	body, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return Unmarshal(body)
}
