package multipart

import (
	"bytes"
	"fmt"
)

// EncodeBatch frames one embedded HTTP request line per entry into a
// multipart/mixed body. Each part carries the fixed batch headers
// (Content-Type: application/http, Content-ID: req-{n}) so the server
// can correlate its response parts back to request order.
func EncodeBatch(boundary string, requestLines []string) []byte {
	var buf bytes.Buffer

	for n, line := range requestLines {
		buf.WriteString("--")
		buf.WriteString(boundary)
		buf.WriteString("\r\n")

		buf.WriteString("Content-Type: application/http\r\n")
		fmt.Fprintf(&buf, "Content-ID: req-%d\r\n", n)
		buf.WriteString("\r\n")

		buf.WriteString(line)
		buf.WriteString("\r\n")
		buf.WriteString("\r\n")

		buf.WriteString("\r\n")
	}

	buf.WriteString("--")
	buf.WriteString(boundary)
	buf.WriteString("--\r\n")

	return buf.Bytes()
}
