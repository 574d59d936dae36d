package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseFieldLineRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"file", "music/a.flac"},
		{"Title", "Time: The Conclusion"},
		{"MUSICBRAINZ_TRACKID", "3f0a-11"},
		{"Last-Modified", "2024-01-02T03:04:05Z"},
		{"volume", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, value, err := ParseFieldLine(tt.name + ": " + tt.value + "\n")
			if err != nil {
				t.Fatalf("ParseFieldLine: %v", err)
			}
			if name != tt.name || value != tt.value {
				t.Errorf("got (%q, %q), want (%q, %q)", name, value, tt.name, tt.value)
			}
		})
	}
}

func TestParseFieldLineRejects(t *testing.T) {
	for _, line := range []string{
		"no separator\n",
		"name: missing newline",
		": empty name\n",
		"bad1name: digits\n",
		"name:nospace\n",
	} {
		if _, _, err := ParseFieldLine(line); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseFieldLine(%q) error = %v, want ErrMalformed", line, err)
		}
	}
}

func TestParseErrorLine(t *testing.T) {
	tests := []struct {
		line    string
		code    AckCode
		known   bool
		idx     int
		command string
		message string
	}{
		{"ACK [1@0] {} not a list\n", AckNotList, true, 0, "", "not a list"},
		{"ACK [2@3] {seekcur} bad song index\n", AckBadArgument, true, 3, "seekcur", "bad song index"},
		{"ACK [3@0] {password} incorrect password\n", AckBadPassword, true, 0, "password", "incorrect password"},
		{"ACK [4@1] {play} you don't have permission for \"play\"\n", AckPermission, true, 1, "play", "you don't have permission for \"play\""},
		{"ACK [50@0] {albumart} No file exists\n", AckNoExist, true, 0, "albumart", "No file exists"},
		{"ACK [5@0] {} unknown command \"foo\"\n", AckCode(5), false, 0, "", "unknown command \"foo\""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ack, err := ParseErrorLine(tt.line)
			if err != nil {
				t.Fatalf("ParseErrorLine: %v", err)
			}
			if ack.Code != tt.code || ack.Code.Known() != tt.known {
				t.Errorf("code = %d (known=%v), want %d (known=%v)", ack.Code, ack.Code.Known(), tt.code, tt.known)
			}
			if ack.ListIndex != tt.idx || ack.Command != tt.command || ack.Message != tt.message {
				t.Errorf("got %+v", ack)
			}
		})
	}
}

func TestParseErrorLineRejects(t *testing.T) {
	for _, line := range []string{
		"ACK\n",
		"ACK [x@0] {} nope\n",
		"ACK [1@0] no braces\n",
		"ACK [1@0] {} missing newline",
	} {
		if _, err := ParseErrorLine(line); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseErrorLine(%q) error = %v, want ErrMalformed", line, err)
		}
	}
}

func TestReadResponseFields(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("field: value\nfield2: value2\nOK\n"))
	resp, err := ReadResponse(r)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if len(resp.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(resp.Fields))
	}
	if resp.Binary != nil {
		t.Errorf("expected no binary payload, got %v", resp.Binary)
	}
	if v, _ := resp.Get("field2"); v != "value2" {
		t.Errorf("field2 = %q", v)
	}
}

func TestReadResponseKeepsDuplicates(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("Artist: A\nTitle: T\nArtist: B\nOK\n"))
	resp, err := ReadResponse(r)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	got := resp.Values("Artist")
	if len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("Values(Artist) = %v", got)
	}
	if m := resp.Map(); len(m["Artist"]) != 2 || len(m["Title"]) != 1 {
		t.Errorf("Map() = %v", m)
	}
}

func TestReadResponseBinary(t *testing.T) {
	payload := []byte{0x00, '\n', 0xff, 'O'}
	var buf bytes.Buffer
	buf.WriteString("size: 4\nbinary: 4\n")
	buf.Write(payload)
	buf.WriteString("\nOK\n")
	buf.WriteString("next: response\nOK\n")

	r := bufio.NewReader(&buf)
	resp, err := ReadResponse(r)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !bytes.Equal(resp.Binary, payload) {
		t.Errorf("payload = %v, want %v", resp.Binary, payload)
	}

	// The stream must be positioned at the start of the following response.
	next, err := ReadResponse(r)
	if err != nil {
		t.Fatalf("ReadResponse next: %v", err)
	}
	if v, _ := next.Get("next"); v != "response" {
		t.Errorf("next response = %+v", next)
	}
}

func TestReadResponseBinaryMissingOK(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("binary: 2\nab\nfoo: bar\n"))
	if _, err := ReadResponse(r); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestReadResponseAck(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("partial: field\nACK [50@0] {readpicture} No file exists\n"))
	_, err := ReadResponse(r)
	var ack *AckError
	if !errors.As(err, &ack) {
		t.Fatalf("expected *AckError, got %v", err)
	}
	if ack.Code != AckNoExist || ack.Command != "readpicture" {
		t.Errorf("ack = %+v", ack)
	}
}

func TestReadResponseTruncated(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("state: play\n"))
	_, err := ReadResponse(r)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if errors.Is(err, ErrMalformed) {
		t.Fatal("truncated stream must not be reported as malformed")
	}
}

func TestQuote(t *testing.T) {
	tests := map[string]string{
		"a/b.flac":         `"a/b.flac"`,
		`say "hi".mp3`:     `"say \"hi\".mp3"`,
		`back\slash.ogg`:   `"back\\slash.ogg"`,
		"spaces in name/x": `"spaces in name/x"`,
	}
	for in, want := range tests {
		if got := Quote(in); got != want {
			t.Errorf("Quote(%q) = %s, want %s", in, got, want)
		}
	}
}
