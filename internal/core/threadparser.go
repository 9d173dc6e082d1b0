package core

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
	"github.com/valter-silva-au/crmsync/pkg/models"
	"golang.org/x/net/html"
)

// UnknownDate is the date label of a message that precedes every date header.
const UnknownDate = "Unknown date"

// timeOfDayPattern extracts an HH:MM time from a time cell.
var timeOfDayPattern = regexp.MustCompile(`\d{1,2}:\d{2}`)

// ThreadMarkup describes the structural markers of a marketplace thread page.
type ThreadMarkup struct {
	// Container selects the element that bounds the conversation.
	Container string
	// TextDirective is the name of the inline script call carrying
	// (text, id) pairs, e.g. msg_text("Labdien", 1042).
	TextDirective string
	// Block selects one message block inside the container.
	Block string
	// Anchor selects the element inside a block whose name attribute is the message id.
	Anchor string
	// TimeCell selects the time-of-day element inside a block.
	TimeCell string
	// DateHeader selects the day separators between blocks.
	DateHeader string
	// SentColor is the background colour token of self-authored blocks.
	SentColor string
	// UnknownDate labels messages that precede every date header.
	UnknownDate string
	// MinContainerLength is the shortest container markup considered plausible.
	MinContainerLength int
}

// DefaultThreadMarkup returns the markers used by the marketplace's message pages.
func DefaultThreadMarkup() ThreadMarkup {
	return ThreadMarkup{
		Container:          "#msg_thread",
		TextDirective:      "msg_text",
		Block:              ".msg_row",
		Anchor:             "a[name]",
		TimeCell:           ".msg_time",
		DateHeader:         ".msg_date",
		SentColor:          "#e4f1d8",
		UnknownDate:        UnknownDate,
		MinContainerLength: 50,
	}
}

// MarkupFromSettings overlays non-empty configured markers on the defaults.
func MarkupFromSettings(s models.MarkupSettings) ThreadMarkup {
	m := DefaultThreadMarkup()
	overlay := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	overlay(&m.Container, s.Container)
	overlay(&m.TextDirective, s.TextDirective)
	overlay(&m.Block, s.Block)
	overlay(&m.Anchor, s.Anchor)
	overlay(&m.TimeCell, s.TimeCell)
	overlay(&m.DateHeader, s.DateHeader)
	overlay(&m.SentColor, s.SentColor)
	overlay(&m.UnknownDate, s.UnknownDate)
	if s.MinContainerLength > 0 {
		m.MinContainerLength = s.MinContainerLength
	}
	return m
}

// ParseWarning describes a message block that was skipped without failing the parse.
type ParseWarning struct {
	MessageID string
	Reason    string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("message %s skipped: %s", w.MessageID, w.Reason)
}

// ThreadParser turns raw thread HTML into an ordered Thread. It keeps no
// state between calls.
type ThreadParser struct {
	markup    ThreadMarkup
	directive *regexp.Regexp
}

// NewThreadParser creates a ThreadParser for the given markup.
func NewThreadParser(markup ThreadMarkup) *ThreadParser {
	name := regexp.QuoteMeta(markup.TextDirective)
	directive := regexp.MustCompile(name +
		`\(\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')\s*,\s*["']?(\d+)["']?\s*\)`)
	return &ThreadParser{markup: markup, directive: directive}
}

// ParseThread parses raw with the default markup.
func ParseThread(raw string) (models.Thread, []ParseWarning, error) {
	return NewThreadParser(DefaultThreadMarkup()).Parse(raw)
}

// positioned is a node of interest with its document-order offset inside the container.
type positioned struct {
	offset int
	sel    *goquery.Selection
}

// Parse extracts the messages of the thread. The returned messages are
// sorted ascending by numeric id. Blocks without text are skipped and
// reported as warnings.
func (p *ThreadParser) Parse(raw string) (models.Thread, []ParseWarning, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return models.Thread{}, nil, &models.ParseError{Reason: fmt.Sprintf("reading markup: %s", err)}
	}

	container := doc.Find(p.markup.Container).First()
	if container.Length() == 0 {
		return models.Thread{}, nil, &models.ParseError{Reason: fmt.Sprintf("thread container %q not found", p.markup.Container)}
	}
	inner, err := container.Html()
	if err != nil {
		return models.Thread{}, nil, &models.ParseError{Reason: fmt.Sprintf("rendering container: %s", err)}
	}
	if len(strings.TrimSpace(inner)) < p.markup.MinContainerLength {
		return models.Thread{}, nil, &models.ParseError{Reason: fmt.Sprintf("thread container holds %d bytes, fewer than %d", len(strings.TrimSpace(inner)), p.markup.MinContainerLength)}
	}

	texts := p.collectTexts(container)
	offsets := documentOffsets(container.Nodes[0])
	headers := p.collectDateHeaders(container, offsets)
	blocks := p.collectBlocks(container, offsets)
	if len(blocks) == 0 {
		return models.Thread{}, nil, &models.ParseError{Reason: "no message blocks found"}
	}

	dates := assignDates(blocks, headers, p.markup.UnknownDate)

	var (
		msgs     []models.Message
		warnings []ParseWarning
		seen     = make(map[string]bool, len(blocks))
	)
	for i, b := range blocks {
		id := b.id
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			warnings = append(warnings, ParseWarning{MessageID: id, Reason: "message id out of range"})
			continue
		}
		if seen[id] {
			warnings = append(warnings, ParseWarning{MessageID: id, Reason: "duplicate message block"})
			continue
		}
		seen[id] = true

		text, ok := texts[id]
		if !ok || strings.TrimSpace(text) == "" {
			warnings = append(warnings, ParseWarning{MessageID: id, Reason: "no message text found"})
			continue
		}
		msgs = append(msgs, models.Message{
			ID:        id,
			Text:      text,
			Time:      b.time,
			Date:      dates[i],
			Direction: b.direction,
		})
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].NumericID() < msgs[j].NumericID()
	})
	return models.NewThread(msgs), warnings, nil
}

// collectTexts gathers id -> text pairs from inline script directives.
// A repeated id keeps the last text seen.
func (p *ThreadParser) collectTexts(container *goquery.Selection) map[string]string {
	texts := make(map[string]string)
	container.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range p.directive.FindAllStringSubmatch(s.Text(), -1) {
			texts[m[2]] = unquoteScriptString(m[1])
		}
	})
	return texts
}

func (p *ThreadParser) collectDateHeaders(container *goquery.Selection, offsets map[*html.Node]int) []dateHeader {
	var headers []dateHeader
	container.Find(p.markup.DateHeader).Each(func(_ int, s *goquery.Selection) {
		label := strings.Join(strings.Fields(s.Text()), " ")
		if label == "" {
			return
		}
		headers = append(headers, dateHeader{offset: offsets[s.Nodes[0]], label: label})
	})
	sort.SliceStable(headers, func(i, j int) bool { return headers[i].offset < headers[j].offset })
	return headers
}

func (p *ThreadParser) collectBlocks(container *goquery.Selection, offsets map[*html.Node]int) []messageBlock {
	sentColor := strings.ToLower(strings.TrimSpace(p.markup.SentColor))

	var blocks []messageBlock
	container.Find(p.markup.Block).Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Find(p.markup.Anchor).First().Attr("name")
		id = strings.TrimSpace(id)
		if !ok || !isDigits(id) {
			return
		}
		timeCell := s.Find(p.markup.TimeCell).First()
		if timeCell.Length() == 0 {
			return
		}
		clock := strings.TrimSpace(timeCell.Text())
		if m := timeOfDayPattern.FindString(clock); m != "" {
			clock = m
		}

		direction := models.DirectionReceived
		if outer, err := goquery.OuterHtml(s); err == nil && sentColor != "" &&
			strings.Contains(strings.ToLower(outer), sentColor) {
			direction = models.DirectionSent
		}

		blocks = append(blocks, messageBlock{
			offset:    offsets[s.Nodes[0]],
			id:        id,
			time:      clock,
			direction: direction,
		})
	})
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].offset < blocks[j].offset })
	return blocks
}

type dateHeader struct {
	offset int
	label  string
}

type messageBlock struct {
	offset    int
	id        string
	time      string
	direction models.Direction
}

// assignDates walks blocks and headers, both ordered by offset, and labels
// each block with the nearest header that precedes it.
func assignDates(blocks []messageBlock, headers []dateHeader, unknown string) []string {
	dates := make([]string, len(blocks))
	current := unknown
	h := 0
	for i, b := range blocks {
		for h < len(headers) && headers[h].offset < b.offset {
			current = headers[h].label
			h++
		}
		dates[i] = current
	}
	return dates
}

// documentOffsets numbers every node under root in document (pre-)order.
func documentOffsets(root *html.Node) map[*html.Node]int {
	offsets := make(map[*html.Node]int)
	n := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		offsets[node] = n
		n++
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return offsets
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// unquoteScriptString decodes a single- or double-quoted script string literal.
// Unknown escapes yield the escaped character and malformed hex escapes keep
// their letter.
func unquoteScriptString(lit string) string {
	if len(lit) >= 2 {
		lit = lit[1 : len(lit)-1]
	}
	if !strings.Contains(lit, `\`) {
		return lit
	}

	var b strings.Builder
	runes := []rune(lit)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' || i+1 >= len(runes) {
			b.WriteRune(r)
			continue
		}
		i++
		switch c := runes[i]; c {
		case 'n':
			b.WriteRune('\n')
		case 'r':
			b.WriteRune('\r')
		case 't':
			b.WriteRune('\t')
		case 'b':
			b.WriteRune('\b')
		case 'f':
			b.WriteRune('\f')
		case 'v':
			b.WriteRune('\v')
		case '0':
			b.WriteRune(0)
		case '\n':
			// line continuation
		case 'x':
			v, ok := hexRune(runes, i+1, 2)
			if !ok {
				b.WriteRune(c)
				continue
			}
			b.WriteRune(v)
			i += 2
		case 'u':
			v, ok := hexRune(runes, i+1, 4)
			if !ok {
				b.WriteRune(c)
				continue
			}
			i += 4
			if utf16.IsSurrogate(v) && i+2 < len(runes) && runes[i+1] == '\\' && runes[i+2] == 'u' {
				if lo, ok := hexRune(runes, i+3, 4); ok {
					if pair := utf16.DecodeRune(v, lo); pair != unicode.ReplacementChar {
						b.WriteRune(pair)
						i += 6
						continue
					}
				}
			}
			b.WriteRune(v)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// hexRune reads n hex digits of runes starting at start.
func hexRune(runes []rune, start, n int) (rune, bool) {
	if start+n > len(runes) {
		return 0, false
	}
	var v rune
	for _, h := range runes[start : start+n] {
		v <<= 4
		switch {
		case h >= '0' && h <= '9':
			v |= h - '0'
		case h >= 'a' && h <= 'f':
			v |= h - 'a' + 10
		case h >= 'A' && h <= 'F':
			v |= h - 'A' + 10
		default:
			return 0, false
		}
	}
	return v, true
}
