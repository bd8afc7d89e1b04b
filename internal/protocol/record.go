package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when bytes do not decode into a Record.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrUnrecognized is returned for a well-formed record that sets no known
	// flag and carries no payload. The stream is still in sync afterwards.
	ErrUnrecognized = errors.New("protocol: unrecognized message")
)

// Flag is a wire intent flag. It is written as 0 or 1 and accepts either
// numbers or JSON booleans when read.
type Flag bool

// MarshalJSON encodes the flag as 0 or 1.
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts 0, 1, false, true and null.
func (f *Flag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("%w: invalid flag value %s", ErrMalformed, data)
	}
	return nil
}

// Record is the self-describing wire shape shared by every message.
// Fields irrelevant to the flag that is set carry zero values.
type Record struct {
	ReportRequest  Flag   `json:"REPORT_REQUEST_FLAG"`
	ReportResponse Flag   `json:"REPORT_RESPONSE_FLAG"`
	JoinRequest    Flag   `json:"JOIN_REQUEST_FLAG"`
	JoinReject     Flag   `json:"JOIN_REJECT_FLAG"`
	JoinAccept     Flag   `json:"JOIN_ACCEPT_FLAG"`
	NewUser        Flag   `json:"NEW_USER_FLAG"`
	QuitRequest    Flag   `json:"QUIT_REQUEST_FLAG"`
	QuitAccept     Flag   `json:"QUIT_ACCEPT_FLAG"`
	Attachment     Flag   `json:"ATTACHMENT_FLAG"`
	Number         int    `json:"NUMBER"`
	Username       string `json:"USERNAME"`
	Filename       string `json:"FILENAME"`
	PayloadLength  int    `json:"PAYLOAD_LENGTH"`
	Payload        string `json:"PAYLOAD"`
}

// Message classifies the record. The first flag set wins, in protocol
// order; a record with no flag but a payload is a Chat.
func (r Record) Message() (Message, error) {
	switch {
	case bool(r.ReportRequest):
		return ReportRequest{}, nil
	case bool(r.ReportResponse):
		return ReportResponse{Count: r.Number, Listing: r.Payload}, nil
	case bool(r.JoinRequest):
		return JoinRequest{Username: r.Username}, nil
	case bool(r.JoinReject):
		return JoinReject{Reason: r.Payload}, nil
	case bool(r.JoinAccept):
		return JoinAccept{Username: r.Username, Welcome: r.Payload}, nil
	case bool(r.NewUser):
		return NewUser{Username: r.Username, Text: r.Payload}, nil
	case bool(r.QuitRequest):
		return QuitRequest{Username: r.Username}, nil
	case bool(r.QuitAccept):
		return QuitAccept{Username: r.Username, Text: r.Payload}, nil
	case r.Payload != "":
		return Chat{Username: r.Username, Text: r.Payload}, nil
	}
	return nil, ErrUnrecognized
}

// RecordOf returns the wire record for m.
func RecordOf(m Message) Record {
	r := m.toRecord()
	r.PayloadLength = len(r.Payload)
	return r
}

// Marshal encodes m as a JSON record body, without framing. Text is
// written as is; '<', '>' and '&' are not escaped.
func Marshal(m Message) ([]byte, error) {
	if m == nil {
		return nil, errors.New("protocol: cannot marshal nil message")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(RecordOf(m)); err != nil {
		return nil, fmt.Errorf("protocol: marshal %s: %w", m.Kind(), err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Unmarshal decodes a JSON record body into a Message.
func Unmarshal(body []byte) (Message, error) {
	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r.Message()
}
