// Package multipart implements the strict MIME framing used by the
// Gmail batch endpoint: splitting a response body into parts given a
// boundary token, and emitting the multipart/mixed request framing.
//
// The parser is deliberately hand-written. Batch correlation depends on
// exact header bytes, so anything malformed (non-7-bit header bytes,
// bare LF, truncated parts) is a hard error rather than something to
// recover from.
package multipart

import (
	"fmt"
	"strings"
)

// Part is one MIME-delimited unit of a multipart body. Header names are
// lowercased; a repeated header overwrites the earlier value.
type Part struct {
	Headers map[string]string
	Body    []byte
}

// ParseError reports a fatal framing error with enough position context
// to diagnose protocol drift.
type ParseError struct {
	// Pos is the byte offset at which the scan failed.
	Pos int

	// Len is the total length of the input buffer.
	Len int

	// AccLen is the length of the part body accumulated so far.
	AccLen int

	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("multipart: (pos %d/%d acc len %d) %s", e.Pos, e.Len, e.AccLen, e.Msg)
}

// Outer framing scan states.
type frameState int

const (
	stateRest frameState = iota
	statePart
	statePartOrEnd
)

// Parse splits data into parts delimited by boundary.
//
// The opening boundary may or may not be preceded by CRLF (servers
// differ). After each part the scan expects either CRLF (another part
// follows) or "--" (end of stream). Any other byte sequence, or running
// off the end of the buffer before the terminator, is a *ParseError.
func Parse(data []byte, boundary string) ([]Part, error) {
	bound := "--" + boundary
	start := bound + "\r\n"
	crlfStart := "\r\n" + start
	inter := "\r\n" + bound

	var raw [][]byte
	var acc []byte
	pos := 0

	fail := func(msg string) error {
		return &ParseError{Pos: pos, Len: len(data), AccLen: len(acc), Msg: msg}
	}

	follows := func(sample string) bool {
		if pos+len(sample) > len(data) {
			return false
		}
		return string(data[pos:pos+len(sample)]) == sample
	}

	s := stateRest
scan:
	for {
		if pos >= len(data) {
			return nil, fail("unexpected end of multipart document")
		}

		switch s {
		case stateRest:
			switch {
			case follows(start):
				pos += len(start)
			case follows(crlfStart):
				pos += len(crlfStart)
			default:
				return nil, fail("did not start with starting boundary")
			}
			acc = nil
			s = statePart

		case statePart:
			if follows(inter) {
				pos += len(inter)
				raw = append(raw, acc)
				s = statePartOrEnd
			} else {
				acc = append(acc, data[pos])
				pos++
			}

		case statePartOrEnd:
			end := false
			if follows("--") {
				pos += 2
				end = true
			}
			if follows("\r\n") {
				pos += 2
				if end {
					break scan
				}
				acc = nil
				s = statePart
				continue
			}
			if end {
				break scan
			}
			return nil, fail("expected part or end")
		}
	}

	parts := make([]Part, 0, len(raw))
	for _, body := range raw {
		p, err := parsePart(body)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	return parts, nil
}

// Header scan states within one part.
type headerState int

const (
	stateHeader headerState = iota
	stateHeaderCR
	stateHeaderOrBody
	stateHeaderOrBodyCR
)

// parsePart splits one raw part into its MIME headers and body. Header
// lines must be 7-bit clean and CRLF terminated; a second CRLF ends the
// header block and everything after it is the body.
func parsePart(part []byte) (Part, error) {
	fail := func(pos int, msg string) (Part, error) {
		return Part{}, &ParseError{Pos: pos, Len: len(part), AccLen: 0, Msg: msg}
	}

	var lines []string
	var hdr strings.Builder
	pos := 0
	s := stateHeader

	var body []byte
headers:
	for {
		if pos >= len(part) {
			return fail(pos, "unexpected end of part")
		}
		b := part[pos]

		if b > 127 {
			return fail(pos, "not 7-bit clean in header")
		}

		switch s {
		case stateHeader:
			switch b {
			case '\r':
				lines = append(lines, hdr.String())
				hdr.Reset()
				s = stateHeaderCR
				pos++
			case '\n', 0:
				return fail(pos, "malformed header")
			default:
				hdr.WriteByte(b)
				pos++
			}

		case stateHeaderCR:
			if b != '\n' {
				return fail(pos, "malformed header")
			}
			s = stateHeaderOrBody
			pos++

		case stateHeaderOrBody:
			if b == '\r' {
				s = stateHeaderOrBodyCR
				pos++
				continue
			}
			s = stateHeader

		case stateHeaderOrBodyCR:
			if b != '\n' {
				return fail(pos, "malformed header")
			}
			pos++
			body = part[pos:]
			break headers
		}
	}

	headers := make(map[string]string, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return fail(0, fmt.Sprintf("header line without colon: %q", line))
		}
		headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}

	return Part{Headers: headers, Body: body}, nil
}
