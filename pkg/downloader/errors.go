package downloader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/itchyny/gojq"
)

// TransportError reports a failed retrieval: the request could not be
// made, the server answered with a non-2xx status, or the body could not be
// read to the end.
type TransportError struct {
	URL        string
	StatusCode int    // 0 when no response was received
	Status     string // e.g. "404 Not Found"
	Message    string // server-provided explanation, if any
	Err        error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	sb.WriteString("GET ")
	sb.WriteString(e.URL)
	if e.Status != "" && e.Err == nil {
		sb.WriteString(": ")
		sb.WriteString(e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Summary is a short, user-facing description of the failure.
func (e *TransportError) Summary() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Status != "" && e.Err == nil:
		return e.Status
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "request failed"
	}
}

// envelopeQuery picks the human-readable message out of the error bodies
// the API returns: {"message": ...}, {"detail": ...} (including validation
// lists), {"error": {"message": ...}}, {"error": ...} and {"msg": ...}.
const envelopeQuery = `[.message?, .detail?, (try .detail[0].msg), (try .error.message), .error?, .msg?]
	| map(select(type == "string" and length > 0)) | .[0] // empty`

var envelopeCode = mustCompile(envelopeQuery)

func mustCompile(src string) *gojq.Code {
	q, err := gojq.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("parsing envelope query: %v", err))
	}
	code, err := gojq.Compile(q)
	if err != nil {
		panic(fmt.Sprintf("compiling envelope query: %v", err))
	}
	return code
}

// extractMessage finds a readable explanation in a failed response body.
func extractMessage(contentType string, body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}
	ct := strings.ToLower(contentType)

	if strings.Contains(ct, "json") || body[0] == '{' {
		if msg := messageFromJSON(body); msg != "" {
			return msg
		}
	}
	if strings.Contains(ct, "html") || bytes.HasPrefix(bytes.ToLower(body), []byte("<!doctype html")) || bytes.HasPrefix(bytes.ToLower(body), []byte("<html")) {
		return messageFromHTML(body)
	}
	if strings.HasPrefix(ct, "text/plain") {
		line, _, _ := strings.Cut(string(body), "\n")
		return truncateMessage(strings.TrimSpace(line))
	}
	return ""
}

func messageFromJSON(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	iter := envelopeCode.Run(v)
	for {
		out, ok := iter.Next()
		if !ok {
			return ""
		}
		if _, isErr := out.(error); isErr {
			continue
		}
		if s, ok := out.(string); ok {
			return truncateMessage(strings.TrimSpace(s))
		}
	}
}

func messageFromHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	for _, sel := range []string{"title", "h1"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return truncateMessage(strings.Join(strings.Fields(text), " "))
		}
	}
	return ""
}

func truncateMessage(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
