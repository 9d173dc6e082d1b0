package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// --- Thread page fixtures ---

func threadPage(parts ...string) string {
	return `<html><head><title>Vēstules</title></head><body><div class="top">menu</div>` +
		`<div id="msg_thread">` + strings.Join(parts, "\n") + `</div></body></html>`
}

func msgBlock(id, clock string, sent bool) string {
	bg := "#ffffff"
	if sent {
		bg = "#E4F1D8"
	}
	return fmt.Sprintf(`<table class="msg_row" style="background-color:%s"><tr><td><a name="%s"></a></td><td class="msg_time">%s</td></tr></table>`, bg, id, clock)
}

func msgDate(label string) string {
	return fmt.Sprintf(`<div class="msg_date">%s</div>`, label)
}

// msgScript renders msg_text directives for alternating text, id pairs.
func msgScript(pairs ...string) string {
	var b strings.Builder
	b.WriteString("<script>\n")
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(&b, "msg_text(%q, %s);\n", pairs[i], pairs[i+1])
	}
	b.WriteString("</script>")
	return b.String()
}

func thread(msgs ...models.Message) models.Thread {
	return models.NewThread(msgs)
}

func msg(id, text string) models.Message {
	return models.Message{ID: id, Text: text, Time: "10:00", Date: "12.03.2024", Direction: models.DirectionReceived}
}

// --- Fake record gateway ---

// fakeGateway is an in-memory CRM. Search matches persons whose name
// contains the term, ignoring case, in insertion order.
type fakeGateway struct {
	fieldKeys map[int64]string
	persons   []models.Person
	deals     []models.Deal
	notes     []models.Note
	newDeals  []models.NewDeal

	nextID int64
	calls  []string
	failOp string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		fieldKeys: map[int64]string{12: "channel_key", 13: "company_key"},
		nextID:    1000,
	}
}

func (g *fakeGateway) record(op string) error {
	g.calls = append(g.calls, op)
	if op == g.failOp {
		return &models.GatewayError{Op: op, Status: 500, Message: "boom"}
	}
	return nil
}

func (g *fakeGateway) id() int64 {
	g.nextID++
	return g.nextID
}

func (g *fakeGateway) addPerson(name string) models.Person {
	p := models.Person{ID: g.id(), Name: name}
	g.persons = append(g.persons, p)
	return p
}

func (g *fakeGateway) addDeal(personID int64, title string) models.Deal {
	d := models.Deal{ID: g.id(), Title: title, PersonID: personID}
	g.deals = append(g.deals, d)
	return d
}

func (g *fakeGateway) addNote(dealID int64, content string) {
	g.notes = append(g.notes, models.Note{ID: g.id(), DealID: dealID, Content: content})
}

func (g *fakeGateway) notesOf(dealID int64) []models.Note {
	var out []models.Note
	for _, n := range g.notes {
		if n.DealID == dealID {
			out = append(out, n)
		}
	}
	return out
}

func (g *fakeGateway) countCalls(op string) int {
	n := 0
	for _, c := range g.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (g *fakeGateway) FieldKey(_ context.Context, fieldID int64) (string, error) {
	if err := g.record("FieldKey"); err != nil {
		return "", err
	}
	return g.fieldKeys[fieldID], nil
}

func (g *fakeGateway) SearchPersons(_ context.Context, term string) ([]models.Person, error) {
	if err := g.record("SearchPersons"); err != nil {
		return nil, err
	}
	var out []models.Person
	for _, p := range g.persons {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(term)) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *fakeGateway) ListPersonDeals(_ context.Context, personID int64) ([]models.Deal, error) {
	if err := g.record("ListPersonDeals"); err != nil {
		return nil, err
	}
	var out []models.Deal
	for _, d := range g.deals {
		if d.PersonID == personID && !d.Deleted {
			out = append(out, d)
		}
	}
	return out, nil
}

func (g *fakeGateway) ListDealNotes(_ context.Context, dealID int64) ([]models.Note, error) {
	if err := g.record("ListDealNotes"); err != nil {
		return nil, err
	}
	return g.notesOf(dealID), nil
}

func (g *fakeGateway) CreatePerson(_ context.Context, name string) (models.Person, error) {
	if err := g.record("CreatePerson"); err != nil {
		return models.Person{}, err
	}
	return g.addPerson(name), nil
}

func (g *fakeGateway) CreateDeal(_ context.Context, deal models.NewDeal) (models.Deal, error) {
	if err := g.record("CreateDeal"); err != nil {
		return models.Deal{}, err
	}
	g.newDeals = append(g.newDeals, deal)
	return g.addDeal(deal.PersonID, deal.Title), nil
}

func (g *fakeGateway) CreateNote(_ context.Context, dealID int64, content string) (models.Note, error) {
	if err := g.record("CreateNote"); err != nil {
		return models.Note{}, err
	}
	g.addNote(dealID, content)
	return g.notes[len(g.notes)-1], nil
}

// --- Fake event logger ---

type recordedEvent struct {
	Type string
	Data map[string]any
}

type fakeEventLogger struct {
	events []recordedEvent
}

func (l *fakeEventLogger) LogEvent(eventType string, data map[string]any) error {
	l.events = append(l.events, recordedEvent{Type: eventType, Data: data})
	return nil
}

func (l *fakeEventLogger) types() []string {
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}
