package core

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

func TestFormatNote_EmbedsTextAndHeader(t *testing.T) {
	m := models.Message{ID: "5", Text: "Vai auto vēl pārdošanā?", Time: "10:15", Date: "12.03.2024", Direction: models.DirectionReceived}

	note := FormatNote(m)

	if !strings.Contains(note, m.Text) {
		t.Errorf("note %q does not contain the message text", note)
	}
	if !strings.Contains(note, "[10:15 12.03.2024]") {
		t.Errorf("note %q does not contain the time/date header", note)
	}
	if !strings.Contains(note, "#1565c0") || !strings.Contains(note, "Received") {
		t.Errorf("received note should use the received style: %q", note)
	}
}

func TestFormatNote_DirectionsAreDistinct(t *testing.T) {
	sent := FormatNote(models.Message{Text: "x", Direction: models.DirectionSent})
	received := FormatNote(models.Message{Text: "x", Direction: models.DirectionReceived})

	if sent == received {
		t.Fatal("sent and received notes should differ")
	}
	if !strings.Contains(sent, "#2e7d32") || !strings.Contains(sent, "Sent") {
		t.Errorf("sent note should use the sent style: %q", sent)
	}
}

func TestFormatNote_TextIsNotEscaped(t *testing.T) {
	m := models.Message{Text: `Cena <b>5000</b> & "derīga"`, Direction: models.DirectionSent}

	if note := FormatNote(m); !strings.Contains(note, m.Text) {
		t.Errorf("note %q should embed the text verbatim", note)
	}
}

func TestFormatNote_UnknownDirectionFallsBackToReceived(t *testing.T) {
	note := FormatNote(models.Message{Text: "x", Direction: models.Direction("other")})
	if !strings.Contains(note, "Received") {
		t.Errorf("expected received style, got %q", note)
	}
}

func TestFormatLinkNote_EscapesURL(t *testing.T) {
	note := FormatLinkNote(`https://www.ss.lv/msg/?a=1&b="2"`)

	if !strings.Contains(note, `href="https://www.ss.lv/msg/?a=1&amp;b=&#34;2&#34;"`) {
		t.Errorf("URL not escaped in href: %q", note)
	}
}

func TestDealTitle(t *testing.T) {
	long := strings.Repeat("ā", 45)

	tests := []struct {
		name    string
		prefix  string
		first   string
		opening string
		want    string
	}{
		{"short opening", "SS.lv", "Jānis", "Labdien", "SS.lv Jānis: Labdien"},
		{"whitespace collapsed", "SS.lv", "Jānis", "  Labdien,\n  vai   ir? ", "SS.lv Jānis: Labdien, vai ir?"},
		{"no prefix", "", "Anna", "Sveiki", "Anna: Sveiki"},
		{"empty opening", "SS.lv", "Anna", "   ", "SS.lv Anna"},
		{"truncated by runes", "SS.lv", "Anna", long, "SS.lv Anna: " + strings.Repeat("ā", 40) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DealTitle(tt.prefix, tt.first, tt.opening)
			if got != tt.want {
				t.Errorf("DealTitle() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("DealTitle() produced invalid UTF-8: %q", got)
			}
		})
	}
}
