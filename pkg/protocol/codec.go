package protocol

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Delimiter terminates every frame.
	Delimiter = '\n'
	// MaxFrameBytes bounds a single frame. Longer lines are dropped as malformed.
	MaxFrameBytes = 16 << 20

	fieldSep        = "|"
	timestampLayout = time.RFC3339Nano
)

// number of fields per tag, tag included
var arity = map[string]int{
	"REGISTER": 4,
	"MESSAGE":  5,
	"FILE":     8,
	"CHUNK":    2,
}

var (
	escaper   = strings.NewReplacer(`\`, `\\`, `|`, `\p`, "\n", `\n`, "\r", `\r`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\p`, `|`, `\n`, "\n", `\r`, "\r")
)

// Encode encodes the record into a single newline terminated frame
func Encode(rec Record) ([]byte, error) {
	var fields []string
	switch r := rec.(type) {
	case *Register:
		if r.DisplayName == "" {
			return nil, fmt.Errorf("failed to encode %s: display name is required", KindRegister)
		}
		fields = []string{
			KindRegister.String(),
			escaper.Replace(r.SenderID),
			escaper.Replace(r.DisplayName),
			encodeBlob(r.Avatar),
		}
	case *TextMessage:
		fields = []string{
			KindText.String(),
			escaper.Replace(r.SenderID),
			encodeBlob(r.Avatar),
			formatTimestamp(r.Timestamp),
			escaper.Replace(r.Text),
		}
	case *FileWhole:
		if r.Filename == "" {
			return nil, fmt.Errorf("failed to encode %s: filename is required", KindFileWhole)
		}
		fields = []string{
			KindFileWhole.String(),
			escaper.Replace(r.SenderID),
			encodeBlob(r.Avatar),
			formatTimestamp(r.Timestamp),
			escaper.Replace(r.Filename),
			strconv.Itoa(len(r.Data)),
			encodeBlob(r.Data),
			escaper.Replace(r.Caption),
		}
	case *FileChunk:
		if r.FileID == "" || r.Total == 0 {
			return nil, fmt.Errorf("failed to encode %s: file id and total chunks are required", KindFileChunk)
		}
		payload, err := marshalChunk(r)
		if err != nil {
			return nil, err
		}
		fields = []string{
			KindFileChunk.String(),
			encodeBlob(payload),
		}
	case nil:
		return nil, errors.New("failed to encode record: record is nil")
	default:
		return nil, fmt.Errorf("failed to encode record: unsupported type %T", rec)
	}

	var b bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			b.WriteString(fieldSep)
		}
		b.WriteString(f)
	}
	b.WriteByte(Delimiter)
	return b.Bytes(), nil
}

// Decode consumes at most one frame from data.
//
// It returns the number of bytes consumed. advance == 0 with a nil error
// means data holds no complete frame yet. A blank line is consumed with a
// nil record. A *MalformedRecordError is returned together with the length
// of the rejected line so the caller can skip it.
func Decode(data []byte) (advance int, rec Record, err error) {
	i := bytes.IndexByte(data, Delimiter)
	if i < 0 {
		return 0, nil, nil
	}
	advance = i + 1
	line := bytes.TrimSuffix(data[:i], []byte{'\r'})
	if len(line) == 0 {
		return advance, nil, nil
	}
	if len(line) > MaxFrameBytes {
		return advance, nil, malformed("", "frame exceeds %d bytes", MaxFrameBytes)
	}
	rec, err = parseLine(string(line))
	if err != nil {
		return advance, nil, err
	}
	return advance, rec, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, fieldSep)
	tag := fields[0]
	want, ok := arity[tag]
	if !ok {
		return nil, malformed(tag, "unknown tag")
	}
	if len(fields) != want {
		return nil, malformed(tag, "got %d fields, want %d", len(fields), want)
	}

	switch tag {
	case "REGISTER":
		return parseRegister(fields)
	case "MESSAGE":
		return parseText(fields)
	case "FILE":
		return parseFileWhole(fields)
	default:
		return parseChunk(fields)
	}
}

func parseRegister(f []string) (*Register, error) {
	const tag = "REGISTER"
	r := &Register{
		SenderID:    unescaper.Replace(f[1]),
		DisplayName: unescaper.Replace(f[2]),
	}
	if r.DisplayName == "" {
		return nil, malformed(tag, "display name is missing")
	}
	avatar, err := decodeBlob(f[3])
	if err != nil {
		return nil, malformedErr(tag, "avatar is not base64", err)
	}
	r.Avatar = avatar
	return r, nil
}

func parseText(f []string) (*TextMessage, error) {
	const tag = "MESSAGE"
	avatar, err := decodeBlob(f[2])
	if err != nil {
		return nil, malformedErr(tag, "avatar is not base64", err)
	}
	ts, err := parseTimestamp(tag, f[3])
	if err != nil {
		return nil, err
	}
	return &TextMessage{
		SenderID:  unescaper.Replace(f[1]),
		Avatar:    avatar,
		Timestamp: ts,
		Text:      unescaper.Replace(f[4]),
	}, nil
}

func parseFileWhole(f []string) (*FileWhole, error) {
	const tag = "FILE"
	avatar, err := decodeBlob(f[2])
	if err != nil {
		return nil, malformedErr(tag, "avatar is not base64", err)
	}
	ts, err := parseTimestamp(tag, f[3])
	if err != nil {
		return nil, err
	}
	name := unescaper.Replace(f[4])
	if name == "" {
		return nil, malformed(tag, "filename is missing")
	}
	size, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return nil, malformedErr(tag, "invalid file size", err)
	}
	data, err := decodeBlob(f[6])
	if err != nil {
		return nil, malformedErr(tag, "file data is not base64", err)
	}
	if int64(len(data)) != size {
		return nil, malformed(tag, "file size %d does not match %d decoded bytes", size, len(data))
	}
	return &FileWhole{
		SenderID:  unescaper.Replace(f[1]),
		Avatar:    avatar,
		Timestamp: ts,
		Filename:  name,
		Data:      data,
		Caption:   unescaper.Replace(f[7]),
	}, nil
}

func parseChunk(f []string) (*FileChunk, error) {
	const tag = "CHUNK"
	raw, err := decodeBlob(f[1])
	if err != nil {
		return nil, malformedErr(tag, "payload is not base64", err)
	}
	c, err := unmarshalChunk(raw)
	if err != nil {
		return nil, malformedErr(tag, "invalid chunk payload", err)
	}
	if c.FileID == "" {
		return nil, malformed(tag, "file id is missing")
	}
	if c.Total == 0 {
		return nil, malformed(tag, "total chunks is missing")
	}
	return c, nil
}

func parseTimestamp(tag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, malformed(tag, "timestamp is missing")
	}
	ts, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, malformedErr(tag, "invalid timestamp", err)
	}
	return ts.UTC(), nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func encodeBlob(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// decodeBlob maps the empty string to a nil slice.
func decodeBlob(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
