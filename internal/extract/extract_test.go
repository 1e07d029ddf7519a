package extract

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"
)

func enc(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func part(mimeType, body string) *gmail.MessagePart {
	return &gmail.MessagePart{MimeType: mimeType, Body: &gmail.MessagePartBody{Data: enc(body)}}
}

func multipart(parts ...*gmail.MessagePart) *gmail.Message {
	return &gmail.Message{Payload: &gmail.MessagePart{MimeType: "multipart/alternative", Parts: parts}}
}

func TestPlainPartWins(t *testing.T) {
	msg := multipart(
		part("text/html", "<p>html version</p>"),
		part("text/plain", "plain version\nwith lines"),
	)
	got := New(nil).Body(msg)
	if got != "plain version\nwith lines" {
		t.Fatalf("expected plain part verbatim, got %q", got)
	}
}

func TestHTMLOnlyPart(t *testing.T) {
	html := `<html><head><STYLE type="text/css">
body { color: red; }
</STYLE><script>var tracker = "x";
alert(1);</script></head>
<body><p>Tom &amp; Jerry</p><img src="https://t.example/pixel.gif" width="1"><div>see   you&nbsp;soon</div></body></html>`
	got := New(nil).Body(multipart(part("text/html", html)))

	if strings.ContainsAny(got, "<>") {
		t.Fatalf("expected no markup, got %q", got)
	}
	for _, banned := range []string{"color: red", "tracker", "alert", "pixel"} {
		if strings.Contains(got, banned) {
			t.Fatalf("expected %q to be stripped, got %q", banned, got)
		}
	}
	if got != "Tom & Jerry see you soon" {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestNestedMultipart(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{MimeType: "multipart/alternative", Parts: []*gmail.MessagePart{
				part("text/html", "<b>bold</b>"),
				part("text/plain", "nested plain"),
			}},
			{MimeType: "application/pdf", Filename: "a.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att"}},
		},
	}}
	if got := New(nil).Body(msg); got != "nested plain" {
		t.Fatalf("expected nested plain part, got %q", got)
	}
}

func TestEmptyPlainFallsBackToHTML(t *testing.T) {
	msg := multipart(part("text/plain", ""), part("text/html", "<p>from html</p>"))
	if got := New(nil).Body(msg); got != "from html" {
		t.Fatalf("expected html fallback, got %q", got)
	}
}

func TestSingleBody(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"plain", "Just text, 3 > 2", "Just text, 3 > 2"},
		{"html", "<div>Hello <i>there</i></div>", "Hello there"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &gmail.Message{Payload: &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc(tc.body)}}}
			if got := New(nil).Body(msg); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMalformedBase64ReturnsSentinel(t *testing.T) {
	msg := multipart(&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: "***not base64***"}})
	res := New(nil).Extract(msg)
	if res.Text != DecodeErrorText {
		t.Fatalf("expected sentinel, got %q", res.Text)
	}
	if !errors.Is(res.Warning, ErrDecode) || !res.Degraded() {
		t.Fatalf("expected decode warning, got %v", res.Warning)
	}

	single := &gmail.Message{Payload: &gmail.MessagePart{Body: &gmail.MessagePartBody{Data: "%%%"}}}
	if got := New(nil).Body(single); got != DecodeErrorText {
		t.Fatalf("expected sentinel for single body, got %q", got)
	}
}

func TestInvalidUTF8ReturnsSentinel(t *testing.T) {
	data := base64.URLEncoding.EncodeToString([]byte{0xff, 0xfe, 'a'})
	msg := multipart(&gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: data}})
	if got := New(nil).Body(msg); got != DecodeErrorText {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

func TestDecodeUnpadded(t *testing.T) {
	data := base64.RawURLEncoding.EncodeToString([]byte("hi?"))
	got, err := Decode(data)
	if err != nil || got != "hi?" {
		t.Fatalf("Decode(%q) = %q, %v", data, got, err)
	}
}

func TestEmptyMessage(t *testing.T) {
	e := New(nil)
	if got := e.Body(nil); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
	if got := e.Body(&gmail.Message{Payload: &gmail.MessagePart{}}); got != "" {
		t.Fatalf("expected empty body, got %q", got)
	}
	if got := e.Body(multipart(part("image/png", "x"))); got != "" {
		t.Fatalf("expected empty body for no text parts, got %q", got)
	}
}

func TestHTMLToTextCollapsesWhitespace(t *testing.T) {
	got := HTMLToText("<p>one</p>\n\n<p>two\tthree</p>   ")
	if got != "one two three" {
		t.Fatalf("unexpected %q", got)
	}
	if HTMLToText("") != "" {
		t.Fatal("expected empty output for empty input")
	}
}

func TestHTMLToTextOversizedTokenFallsBack(t *testing.T) {
	long := strings.Repeat("a", maxTokenBytes+16)
	doc := "<p>" + long + "</p> <b>tail &amp; more</b>"

	if _, err := tokenizeText(doc); !errors.Is(err, html.ErrBufferExceeded) {
		t.Fatalf("expected buffer exceeded, got %v", err)
	}
	got := HTMLToText(doc)
	if strings.Contains(got, "<") {
		t.Fatalf("markup left in output: %q", got[len(got)-40:])
	}
	if !strings.HasPrefix(got, long) || !strings.HasSuffix(got, " tail & more") {
		t.Fatalf("unexpected fallback output tail %q", got[len(got)-40:])
	}
}
