package core

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// dealTitleExcerptRunes bounds the opening-message excerpt in deal titles.
const dealTitleExcerptRunes = 40

type directionStyle struct {
	color string
	icon  string
	label string
}

var directionStyles = map[models.Direction]directionStyle{
	models.DirectionSent:     {color: "#2e7d32", icon: "\U0001F4E4", label: "Sent"},
	models.DirectionReceived: {color: "#1565c0", icon: "\U0001F4E5", label: "Received"},
}

// FormatNote renders a message as a note fragment. The message text is
// embedded verbatim so later runs can find it by substring containment.
func FormatNote(m models.Message) string {
	style, ok := directionStyles[m.Direction]
	if !ok {
		style = directionStyles[models.DirectionReceived]
	}
	return fmt.Sprintf(
		`<div style="border-left:3px solid %s;padding-left:8px"><b style="color:%s">%s %s</b> <i>[%s %s]</i><br>%s</div>`,
		style.color, style.color, style.icon, style.label, m.Time, m.Date, m.Text,
	)
}

// FormatLinkNote renders the note that points back to the source thread.
func FormatLinkNote(threadURL string) string {
	escaped := html.EscapeString(threadURL)
	return fmt.Sprintf(`<p>&#128279; Source conversation: <a href="%s">%s</a></p>`, escaped, escaped)
}

// DealTitle builds the title of a deal created for a new thread.
func DealTitle(prefix, firstName, opening string) string {
	excerpt := strings.Join(strings.Fields(opening), " ")
	if utf8.RuneCountInString(excerpt) > dealTitleExcerptRunes {
		excerpt = string([]rune(excerpt)[:dealTitleExcerptRunes]) + "..."
	}
	title := strings.TrimSpace(prefix + " " + firstName)
	if excerpt == "" {
		return title
	}
	return title + ": " + excerpt
}
