// Package protocol defines the chat relay messages and the codec that moves
// them across a connection.
//
// Each protocol action is its own Go type implementing Message, so a value
// can only carry the fields its action needs. The flag-based record that
// travels on the wire lives in record.go and is converted at the edges.
package protocol

// Kind identifies the protocol action a Message carries.
type Kind int

// Message kinds, one per protocol action.
const (
	KindReportRequest Kind = iota + 1
	KindReportResponse
	KindJoinRequest
	KindJoinReject
	KindJoinAccept
	KindNewUser
	KindQuitRequest
	KindQuitAccept
	KindChat
)

var kindNames = map[Kind]string{
	KindReportRequest:  "report-request",
	KindReportResponse: "report-response",
	KindJoinRequest:    "join-request",
	KindJoinReject:     "join-reject",
	KindJoinAccept:     "join-accept",
	KindNewUser:        "new-user",
	KindQuitRequest:    "quit-request",
	KindQuitAccept:     "quit-accept",
	KindChat:           "chat",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Message is implemented by every protocol action. The unexported method
// keeps the set of variants closed to this package.
type Message interface {
	Kind() Kind
	toRecord() Record
}

// ReportRequest asks the server for the current member listing.
type ReportRequest struct{}

// ReportResponse answers a ReportRequest. Listing holds one line per member.
type ReportResponse struct {
	Count   int
	Listing string
}

// JoinRequest asks to be admitted to the room under Username.
type JoinRequest struct {
	Username string
}

// JoinReject tells the requester why admission failed.
type JoinReject struct {
	Reason string
}

// JoinAccept confirms admission to the joiner.
type JoinAccept struct {
	Username string
	Welcome  string
}

// NewUser announces a freshly admitted member to the rest of the room.
type NewUser struct {
	Username string
	Text     string
}

// QuitRequest asks the server to remove the sender from the room.
type QuitRequest struct {
	Username string
}

// QuitAccept announces that a member left the room.
type QuitAccept struct {
	Username string
	Text     string
}

// Chat is an ordinary room message. Clients pre-format Text as
// "<username>: <text>"; the server relays it untouched.
type Chat struct {
	Username string
	Text     string
}

func (ReportRequest) Kind() Kind  { return KindReportRequest }
func (ReportResponse) Kind() Kind { return KindReportResponse }
func (JoinRequest) Kind() Kind    { return KindJoinRequest }
func (JoinReject) Kind() Kind     { return KindJoinReject }
func (JoinAccept) Kind() Kind     { return KindJoinAccept }
func (NewUser) Kind() Kind        { return KindNewUser }
func (QuitRequest) Kind() Kind    { return KindQuitRequest }
func (QuitAccept) Kind() Kind     { return KindQuitAccept }
func (Chat) Kind() Kind           { return KindChat }

func (ReportRequest) toRecord() Record {
	return Record{ReportRequest: true}
}

func (m ReportResponse) toRecord() Record {
	return Record{ReportResponse: true, Number: m.Count, Payload: m.Listing}
}

func (m JoinRequest) toRecord() Record {
	return Record{JoinRequest: true, Username: m.Username}
}

func (m JoinReject) toRecord() Record {
	return Record{JoinReject: true, Payload: m.Reason}
}

func (m JoinAccept) toRecord() Record {
	return Record{JoinAccept: true, Username: m.Username, Payload: m.Welcome}
}

func (m NewUser) toRecord() Record {
	return Record{NewUser: true, Username: m.Username, Payload: m.Text}
}

func (m QuitRequest) toRecord() Record {
	return Record{QuitRequest: true, Username: m.Username}
}

func (m QuitAccept) toRecord() Record {
	return Record{QuitAccept: true, Username: m.Username, Payload: m.Text}
}

func (m Chat) toRecord() Record {
	return Record{Username: m.Username, Payload: m.Text}
}
