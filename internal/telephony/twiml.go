package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"sort"
	"strings"
)

// TwiML is a minimal Twilio Markup Language response builder.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlConnect struct {
	XMLName xml.Name    `xml:"Connect"`
	Stream  twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL    string           `xml:"url,attr"`
	Params []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// RenderStreamTwiML bridges the call's audio to a bidirectional media stream.
func RenderStreamTwiML(t StreamTarget) (string, error) {
	if strings.TrimSpace(t.URL) == "" {
		return "", errors.New("telephony: stream url required")
	}
	s := twimlStream{URL: t.URL}
	names := make([]string, 0, len(t.Params))
	for k := range t.Params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		s.Params = append(s.Params, twimlParameter{Name: k, Value: t.Params[k]})
	}
	return render(twimlResponse{Verbs: []any{twimlConnect{Stream: s}}})
}

// RenderSayHangup speaks a message and ends the call.
func RenderSayHangup(message string) (string, error) {
	var r twimlResponse
	if message != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: message})
	}
	r.Verbs = append(r.Verbs, twimlHangup{})
	return render(r)
}

func render(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
