package core

import (
	"context"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// RecordGateway is the subset of the CRM API the reconciler consumes.
// This interface is defined locally in core to avoid importing integration.
type RecordGateway interface {
	// FieldKey resolves a custom deal field id to the key used when writing it.
	FieldKey(ctx context.Context, fieldID int64) (string, error)
	// SearchPersons returns candidate persons matching term, in relevance order.
	SearchPersons(ctx context.Context, term string) ([]models.Person, error)
	// ListPersonDeals returns the person's deals, excluding deleted ones.
	ListPersonDeals(ctx context.Context, personID int64) ([]models.Deal, error)
	// ListDealNotes returns every note attached to the deal.
	ListDealNotes(ctx context.Context, dealID int64) ([]models.Note, error)
	CreatePerson(ctx context.Context, name string) (models.Person, error)
	CreateDeal(ctx context.Context, deal models.NewDeal) (models.Deal, error)
	CreateNote(ctx context.Context, dealID int64, content string) (models.Note, error)
}

// ThreadFetcher retrieves the raw HTML of a thread page with an
// authenticated session. It returns *models.SessionExpiredError when the
// session no longer grants access.
type ThreadFetcher interface {
	FetchThread(ctx context.Context, threadURL string) (string, error)
}

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Step names a stage of the sync pipeline reported to a ProgressObserver.
type Step string

const (
	StepFetch        Step = "fetch"
	StepParse        Step = "parse"
	StepWarning      Step = "warning"
	StepMatchPerson  Step = "match_person"
	StepMatchDeal    Step = "match_deal"
	StepCreatePerson Step = "create_person"
	StepCreateDeal   Step = "create_deal"
	StepAddNote      Step = "add_note"
	StepDone         Step = "done"
)

// ProgressObserver receives human-oriented progress updates. It must not
// block for long; the pipeline calls it synchronously.
type ProgressObserver interface {
	Progress(step Step, detail string)
}

// ObserverFunc adapts a function to ProgressObserver.
type ObserverFunc func(step Step, detail string)

// Progress calls f.
func (f ObserverFunc) Progress(step Step, detail string) { f(step, detail) }

type nopObserver struct{}

func (nopObserver) Progress(Step, string) {}
