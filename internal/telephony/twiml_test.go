package telephony

import (
	"strings"
	"testing"
)

func TestRenderStreamTwiML(t *testing.T) {
	xml, err := RenderStreamTwiML(StreamTarget{
		URL:    "wss://bot.example.com/ws",
		Params: map[string]string{"to_number": "+15557654321", "from_number": "+15551234567"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, want := range []string{
		`<Connect>`,
		`<Stream url="wss://bot.example.com/ws">`,
		`<Parameter name="from_number" value="+15551234567"></Parameter>`,
		`<Parameter name="to_number" value="+15557654321"></Parameter>`,
	} {
		if !strings.Contains(xml, want) {
			t.Fatalf("expected %q in xml: %s", want, xml)
		}
	}
	if strings.Index(xml, "from_number") > strings.Index(xml, "to_number") {
		t.Fatalf("expected parameters in name order: %s", xml)
	}
}

func TestRenderStreamTwiMLRequiresURL(t *testing.T) {
	if _, err := RenderStreamTwiML(StreamTarget{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderSayHangup(t *testing.T) {
	xml, err := RenderSayHangup("We are busy & will call back")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(xml, "<Say>We are busy &amp; will call back</Say>") || !strings.Contains(xml, "<Hangup>") {
		t.Fatalf("unexpected xml: %s", xml)
	}
}
