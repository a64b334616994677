package framer_test

import (
	"errors"
	"testing"

	"github.com/adamwoolhether/streamfetch/fetch/framer"
	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		block    string
		expFrame framer.Frame
		expBody  string
		expErr   error
	}{
		{
			name:     "header and body in one block",
			block:    "HTTP/1.1 200 OK\r\nContent-Length: 12\r\n\r\nhello world!",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: 12, BodyOffset: 39},
			expBody:  "hello world!",
		},
		{
			name:     "header only",
			block:    "HTTP/1.1 200 OK\r\nServer: test\r\n\r\n",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: framer.Unknown, BodyOffset: 33},
			expBody:  "",
		},
		{
			name:     "content length is case insensitive",
			block:    "HTTP/1.0 200 OK\r\ncOnTeNt-LeNgTh:\t7\r\n\r\nabc",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: 7, BodyOffset: 38},
			expBody:  "abc",
		},
		{
			name:     "unparsable content length",
			block:    "HTTP/1.1 200 OK\r\nContent-Length: lots\r\n\r\nx",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: framer.Unknown, BodyOffset: 41},
			expBody:  "x",
		},
		{
			name:     "negative content length",
			block:    "HTTP/1.1 200 OK\r\nContent-Length: -5\r\n\r\n",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: framer.Unknown, BodyOffset: 39},
		},
		{
			name:     "not found",
			block:    "HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found",
			expFrame: framer.Frame{StatusCode: 404, DeclaredLength: framer.Unknown},
			expErr:   framer.ErrNotFound,
		},
		{
			name:     "not found token without status line",
			block:    "garbage 404 garbage\r\n\r\n",
			expFrame: framer.Frame{DeclaredLength: framer.Unknown},
			expErr:   framer.ErrNotFound,
		},
		{
			name:     "404 in body is not a status",
			block:    "HTTP/1.1 200 OK\r\n\r\nerror 404 page",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: framer.Unknown, BodyOffset: 19},
			expBody:  "error 404 page",
		},
		{
			name:     "no separator",
			block:    "HTTP/1.1 200 OK\r\nContent-Length: 3\r\nX-Long: aaaa",
			expFrame: framer.Frame{StatusCode: 200, DeclaredLength: 3},
			expErr:   framer.ErrNoSeparator,
		},
		{
			name:     "empty block",
			block:    "",
			expFrame: framer.Frame{DeclaredLength: framer.Unknown},
			expErr:   framer.ErrNoSeparator,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			block := []byte(tc.block)

			f, err := framer.Parse(block)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("exp err %v, got %v", tc.expErr, err)
			}
			if diff := cmp.Diff(tc.expFrame, f); diff != "" {
				t.Errorf("frame mismatch (-want +got):\n%s", diff)
			}
			if err != nil {
				return
			}
			if got := string(f.Body(block)); got != tc.expBody {
				t.Errorf("exp body %q, got %q", tc.expBody, got)
			}
		})
	}
}

func TestState(t *testing.T) {
	s := framer.NewState()
	if s.Complete() {
		t.Fatal("state must not be complete before the first block")
	}

	s.Start(framer.Frame{DeclaredLength: 10})
	if got := string(s.Clip([]byte("0123456"))); got != "0123456" {
		t.Errorf("exp unclipped block, got %q", got)
	}
	s.Add(7)

	if got := string(s.Clip([]byte("789ABC"))); got != "789" {
		t.Errorf("exp block clipped to declared length, got %q", got)
	}
	s.Add(3)

	if !s.Complete() {
		t.Error("exp complete once declared length is delivered")
	}
	if got := s.Clip([]byte("more")); len(got) != 0 {
		t.Errorf("exp nothing past declared length, got %q", got)
	}
}

func TestState_UnknownLength(t *testing.T) {
	s := framer.NewState()
	s.Start(framer.Frame{DeclaredLength: framer.Unknown})
	s.Add(1 << 20)

	if s.Complete() {
		t.Error("unknown length only completes on peer close")
	}
	if got := string(s.Clip([]byte("abc"))); got != "abc" {
		t.Errorf("exp unclipped block, got %q", got)
	}
}

func TestState_ZeroLength(t *testing.T) {
	s := framer.NewState()
	s.Start(framer.Frame{DeclaredLength: 0})

	if !s.Complete() {
		t.Error("zero declared length is complete right after the header")
	}
}
