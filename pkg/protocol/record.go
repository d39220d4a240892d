// Package protocol implements the relay/1 wire format shared by the hub and
// its clients.
//
// Every record travels as one newline terminated line whose leading tag
// selects the record kind:
//
//	REGISTER|<senderId>|<displayName>|<avatarBase64>
//	MESSAGE|<senderId>|<avatarBase64>|<timestamp>|<text>
//	FILE|<senderId>|<avatarBase64>|<timestamp>|<filename>|<filesizeBytes>|<fileBase64>|<caption>
//	CHUNK|<chunkBase64>
//
// Binary values are standard base64. Free text escapes backslash, pipe, CR
// and LF. Timestamps are RFC 3339 in UTC. The CHUNK payload is a protobuf
// message, see proto/chunk.proto.
package protocol

import "time"

// Version names the wire format implemented by this package.
const Version = "relay/1"

// Kind represents the type of a record
type Kind int

const (
	KindRegister Kind = iota
	KindText
	KindFileWhole
	KindFileChunk
)

// String returns the wire tag of the Kind
func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "REGISTER"
	case KindText:
		return "MESSAGE"
	case KindFileWhole:
		return "FILE"
	case KindFileChunk:
		return "CHUNK"
	default:
		return "UNKNOWN"
	}
}

// Record is one unit of wire traffic.
// The concrete types are *Register, *TextMessage, *FileWhole and *FileChunk.
type Record interface {
	Kind() Kind
	// Sender returns the sender identity carried by the record, if any.
	Sender() string
}

// Register announces the identity of a connection. Clients send it with an
// empty SenderID; the hub answers with the SenderID it assigned.
type Register struct {
	SenderID    string
	DisplayName string
	Avatar      []byte
}

// TextMessage is a broadcast chat line.
type TextMessage struct {
	SenderID  string
	Avatar    []byte
	Timestamp time.Time
	Text      string
}

// FileWhole carries a complete attachment in a single record.
type FileWhole struct {
	SenderID  string
	Avatar    []byte
	Timestamp time.Time
	Filename  string
	Data      []byte
	Caption   string
}

// FileChunk carries one slice of a chunked attachment.
type FileChunk struct {
	FileID string
	Index  uint32
	Total  uint32
	Data   []byte
}

func (*Register) Kind() Kind    { return KindRegister }
func (*TextMessage) Kind() Kind { return KindText }
func (*FileWhole) Kind() Kind   { return KindFileWhole }
func (*FileChunk) Kind() Kind   { return KindFileChunk }

func (r *Register) Sender() string    { return r.SenderID }
func (m *TextMessage) Sender() string { return m.SenderID }
func (f *FileWhole) Sender() string   { return f.SenderID }

// Sender always returns an empty string; chunks carry no identity.
func (*FileChunk) Sender() string { return "" }
