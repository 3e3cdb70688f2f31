package batch

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// EmbeddedResponse is the raw HTTP response found inside one multipart
// part body: status line, header block, body.
type EmbeddedResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Header returns the value of a header by case-insensitive name.
func (r *EmbeddedResponse) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// ParseEmbedded parses a part body as an HTTP/1.x response. If the
// response declares a Content-Length it must match the observed body
// length exactly; a mismatch means the embedded frame was truncated or
// concatenated and is a fatal integrity error.
func ParseEmbedded(data []byte) (*EmbeddedResponse, error) {
	head, body, found := bytes.Cut(data, []byte("\r\n\r\n"))
	if !found {
		return nil, fmt.Errorf("embedded response incomplete: no header/body boundary in %d bytes", len(data))
	}

	lines := strings.Split(string(head), "\r\n")

	status, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("embedded response header line without colon: %q", line)
		}
		headers[strings.ToLower(name)] = strings.TrimSpace(value)
	}

	if clStr, ok := headers["content-length"]; ok {
		cl, err := strconv.Atoi(clStr)
		if err != nil {
			return nil, fmt.Errorf("embedded response content-length %q: %w", clStr, err)
		}
		if cl != len(body) {
			return nil, fmt.Errorf("embedded response body len %d not what we expected (i.e., %d)", len(body), cl)
		}
	}

	return &EmbeddedResponse{Status: status, Headers: headers, Body: body}, nil
}

// parseStatusLine extracts the integer status from "HTTP/x.y NNN ...".
func parseStatusLine(line string) (int, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("malformed embedded status line: %q", line)
	}

	status, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed embedded status code in %q: %w", line, err)
	}

	return status, nil
}
