package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// RecordReader is the read side of the CRM gateway.
type RecordReader interface {
	FieldKey(ctx context.Context, fieldID int64) (string, error)
	SearchPersons(ctx context.Context, term string) ([]models.Person, error)
	ListPersonDeals(ctx context.Context, personID int64) ([]models.Deal, error)
	ListDealNotes(ctx context.Context, dealID int64) ([]models.Note, error)
}

// PlannedWrite is a CRM write that a dry run skipped.
type PlannedWrite struct {
	Op      string
	Summary string
}

// DryRunGateway forwards reads to a real client and records writes instead
// of sending them. Records it pretends to create get negative ids.
type DryRunGateway struct {
	reader RecordReader

	mu      sync.Mutex
	nextID  int64
	planned []PlannedWrite
}

// NewDryRunGateway wraps reader.
func NewDryRunGateway(reader RecordReader) *DryRunGateway {
	return &DryRunGateway{reader: reader}
}

func (g *DryRunGateway) FieldKey(ctx context.Context, fieldID int64) (string, error) {
	return g.reader.FieldKey(ctx, fieldID)
}

func (g *DryRunGateway) SearchPersons(ctx context.Context, term string) ([]models.Person, error) {
	return g.reader.SearchPersons(ctx, term)
}

func (g *DryRunGateway) ListPersonDeals(ctx context.Context, personID int64) ([]models.Deal, error) {
	if personID < 0 {
		return nil, nil
	}
	return g.reader.ListPersonDeals(ctx, personID)
}

func (g *DryRunGateway) ListDealNotes(ctx context.Context, dealID int64) ([]models.Note, error) {
	if dealID < 0 {
		return nil, nil
	}
	return g.reader.ListDealNotes(ctx, dealID)
}

func (g *DryRunGateway) CreatePerson(_ context.Context, name string) (models.Person, error) {
	id := g.plan("create person", name)
	return models.Person{ID: id, Name: name}, nil
}

func (g *DryRunGateway) CreateDeal(_ context.Context, deal models.NewDeal) (models.Deal, error) {
	id := g.plan("create deal", fmt.Sprintf("%q for person %d", deal.Title, deal.PersonID))
	return models.Deal{ID: id, Title: deal.Title, PersonID: deal.PersonID}, nil
}

func (g *DryRunGateway) CreateNote(_ context.Context, dealID int64, content string) (models.Note, error) {
	id := g.plan("create note", fmt.Sprintf("deal %d, %d bytes", dealID, len(content)))
	return models.Note{ID: id, DealID: dealID, Content: content}, nil
}

// Planned returns the writes skipped so far, in order.
func (g *DryRunGateway) Planned() []PlannedWrite {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PlannedWrite, len(g.planned))
	copy(out, g.planned)
	return out
}

func (g *DryRunGateway) plan(op, summary string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID--
	g.planned = append(g.planned, PlannedWrite{Op: op, Summary: summary})
	return g.nextID
}
