// Package framer parses the first block of an HTTP/1.1 response: the
// not-found status, the declared Content-Length and the offset of the body.
//
// Only the first physical read is framed. The complete header section must
// arrive in that block; headers spanning several reads are rejected with
// [ErrNoSeparator] rather than accumulated.
package framer

import (
	"bytes"
	"errors"
	"strconv"
)

// Separator ends the header section.
const Separator = "\r\n\r\n"

// Unknown marks an absent declared length.
const Unknown = -1

var (
	ErrNotFound    = errors.New("resource not found")
	ErrNoSeparator = errors.New("no header/body separator in first block")
)

var (
	sep           = []byte(Separator)
	notFoundToken = []byte(" 404 ")
	contentLength = []byte("content-length:")
)

// Frame is what the first block reveals about the response.
type Frame struct {
	// StatusCode is the status line code, or zero when it could not be read.
	StatusCode int
	// DeclaredLength is the Content-Length value, or Unknown.
	DeclaredLength int64
	// BodyOffset is the index of the first body byte in the block.
	BodyOffset int
}

// Body returns the body fragment carried by block.
func (f Frame) Body(block []byte) []byte {
	return block[f.BodyOffset:]
}

// Parse frames the first response block. The returned Frame is populated as
// far as parsing got when an error is returned.
func Parse(block []byte) (Frame, error) {
	f := Frame{DeclaredLength: Unknown}

	end := bytes.Index(block, sep)
	header := block
	if end >= 0 {
		header = block[:end]
	}

	f.StatusCode = statusCode(header)
	if f.StatusCode == 404 || (f.StatusCode == 0 && bytes.Contains(header, notFoundToken)) {
		return f, ErrNotFound
	}

	if i := indexFold(header, contentLength); i >= 0 {
		f.DeclaredLength = parseLength(header[i+len(contentLength):])
	}

	if end < 0 {
		return f, ErrNoSeparator
	}
	f.BodyOffset = end + len(sep)

	return f, nil
}

// statusCode reads the code from an "HTTP/x.y NNN reason" status line.
func statusCode(header []byte) int {
	line := header
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if !bytes.HasPrefix(line, []byte("HTTP/")) {
		return 0
	}

	sp := bytes.IndexByte(line, ' ')
	if sp < 0 || len(line) < sp+4 {
		return 0
	}

	code := line[sp+1 : sp+4]
	if len(line) > sp+4 && line[sp+4] != ' ' && line[sp+4] != '\r' {
		return 0
	}

	n, err := strconv.Atoi(string(code))
	if err != nil || n < 100 || n > 999 {
		return 0
	}

	return n
}

// parseLength reads a decimal integer after optional blanks, the way
// sscanf("%d") would. Anything unparsable or negative is Unknown.
func parseLength(b []byte) int64 {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}

	start := i
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		i++
	}
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}

	n, err := strconv.ParseInt(string(b[start:i]), 10, 64)
	if err != nil || n < 0 {
		return Unknown
	}

	return n
}

// indexFold is bytes.Index with ASCII case folding. sub must be lower case.
func indexFold(s, sub []byte) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j, c := range sub {
			b := s[i+j]
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if b != c {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}

	return -1
}
