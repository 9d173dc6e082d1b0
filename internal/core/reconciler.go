package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// DealFields identifies where new deals are filed in the CRM.
type DealFields struct {
	// OwnerID is the CRM user that owns created deals. Zero leaves the
	// choice to the CRM (the token's user).
	OwnerID int64
	// ChannelFieldID and CompanyFieldID are the ids of the two custom deal
	// fields tagged from the sender mapping.
	ChannelFieldID int64
	CompanyFieldID int64
}

// ReconcileInput is one thread to be mapped onto the CRM.
type ReconcileInput struct {
	Thread      models.Thread
	Sender      models.SenderConfig
	ContactName string
	// ThreadURL is linked from the first note of a newly created deal.
	ThreadURL string
}

// Reconciler maps a parsed thread onto a person and deal and appends the
// messages that are not yet recorded as notes.
//
// Reconcile issues its gateway calls strictly one after another. Nothing
// guards against two runs on the same thread at the same time; both can miss
// each other's notes and append duplicates.
type Reconciler struct {
	gateway  RecordGateway
	fields   DealFields
	observer ProgressObserver
	events   EventLogger
}

// NewReconciler creates a Reconciler. observer and events may be nil.
func NewReconciler(gateway RecordGateway, fields DealFields, observer ProgressObserver, events EventLogger) *Reconciler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Reconciler{
		gateway:  gateway,
		fields:   fields,
		observer: observer,
		events:   events,
	}
}

// Reconcile finds the deal that already holds the thread's opening message
// and appends the missing messages to it, or creates a person (if needed)
// and a new deal holding every message. It stops at the first error; writes
// made before the error are not undone.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (*models.SyncResult, error) {
	opening, ok := in.Thread.Opening()
	if !ok {
		return nil, &models.EmptyThreadError{}
	}
	firstName := models.FirstToken(in.ContactName)
	if firstName == "" {
		return nil, errors.New("contact name is empty")
	}

	person, found, err := r.matchPerson(ctx, firstName)
	if err != nil {
		return nil, err
	}

	if found {
		deal, notes, owned, err := r.findOwningDeal(ctx, person.ID, opening.Text)
		if err != nil {
			return nil, err
		}
		if owned {
			added, err := r.appendMissing(ctx, deal.ID, in.Thread, notes)
			if err != nil {
				return nil, err
			}
			return &models.SyncResult{
				PersonID:   person.ID,
				DealID:     deal.ID,
				NotesAdded: added,
				Action:     models.ActionSyncedNotesToExistingDeal,
			}, nil
		}
	} else {
		r.observer.Progress(StepCreatePerson, in.ContactName)
		person, err = r.gateway.CreatePerson(ctx, in.ContactName)
		if err != nil {
			return nil, fmt.Errorf("creating person %q: %w", in.ContactName, err)
		}
		r.logEvent("person.created", map[string]any{"person_id": person.ID, "name": in.ContactName})
	}

	dealFirstName := person.FirstNameToken()
	if dealFirstName == "" {
		dealFirstName = firstName
	}
	deal, err := r.createDeal(ctx, person.ID, DealTitle(in.Sender.DealTitlePrefix, dealFirstName, opening.Text), in.Sender)
	if err != nil {
		return nil, err
	}

	if _, err := r.gateway.CreateNote(ctx, deal.ID, FormatLinkNote(in.ThreadURL)); err != nil {
		return nil, fmt.Errorf("adding link note to deal %d: %w", deal.ID, err)
	}

	added, err := r.appendMissing(ctx, deal.ID, in.Thread, nil)
	if err != nil {
		return nil, err
	}
	return &models.SyncResult{
		PersonID:   person.ID,
		DealID:     deal.ID,
		NotesAdded: added,
		Action:     models.ActionCreatedNewDeal,
	}, nil
}

// matchPerson returns the first search result whose first-name token equals
// firstName, ignoring case. Only the first name is compared.
func (r *Reconciler) matchPerson(ctx context.Context, firstName string) (models.Person, bool, error) {
	candidates, err := r.gateway.SearchPersons(ctx, firstName)
	if err != nil {
		return models.Person{}, false, fmt.Errorf("searching persons for %q: %w", firstName, err)
	}
	for _, p := range candidates {
		if strings.EqualFold(p.FirstNameToken(), firstName) {
			r.observer.Progress(StepMatchPerson, fmt.Sprintf("matched %s (#%d)", p.Name, p.ID))
			return p, true, nil
		}
	}
	r.observer.Progress(StepMatchPerson, fmt.Sprintf("no person named %s", firstName))
	return models.Person{}, false, nil
}

// findOwningDeal scans the person's deals in listing order and returns the
// first one with a note containing the opening text, along with its notes.
func (r *Reconciler) findOwningDeal(ctx context.Context, personID int64, openingText string) (models.Deal, []models.Note, bool, error) {
	deals, err := r.gateway.ListPersonDeals(ctx, personID)
	if err != nil {
		return models.Deal{}, nil, false, fmt.Errorf("listing deals of person %d: %w", personID, err)
	}
	for _, d := range deals {
		if d.Deleted {
			continue
		}
		notes, err := r.gateway.ListDealNotes(ctx, d.ID)
		if err != nil {
			return models.Deal{}, nil, false, fmt.Errorf("listing notes of deal %d: %w", d.ID, err)
		}
		if containedInNotes(openingText, notes) {
			r.observer.Progress(StepMatchDeal, fmt.Sprintf("thread belongs to deal %q (#%d)", d.Title, d.ID))
			return d, notes, true, nil
		}
	}
	r.observer.Progress(StepMatchDeal, "no deal holds this conversation")
	return models.Deal{}, nil, false, nil
}

func (r *Reconciler) createDeal(ctx context.Context, personID int64, title string, sender models.SenderConfig) (models.Deal, error) {
	channelKey, err := r.resolveFieldKey(ctx, "crm.channel_field_id", r.fields.ChannelFieldID)
	if err != nil {
		return models.Deal{}, err
	}
	companyKey, err := r.resolveFieldKey(ctx, "crm.company_field_id", r.fields.CompanyFieldID)
	if err != nil {
		return models.Deal{}, err
	}

	r.observer.Progress(StepCreateDeal, title)
	deal, err := r.gateway.CreateDeal(ctx, models.NewDeal{
		Title:    title,
		OwnerID:  r.fields.OwnerID,
		PersonID: personID,
		Fields: map[string]any{
			channelKey: sender.ChannelOptionID,
			companyKey: sender.CompanyOptionID,
		},
	})
	if err != nil {
		return models.Deal{}, fmt.Errorf("creating deal %q: %w", title, err)
	}
	r.logEvent("deal.created", map[string]any{"deal_id": deal.ID, "person_id": personID, "title": title})
	return deal, nil
}

func (r *Reconciler) resolveFieldKey(ctx context.Context, configKey string, fieldID int64) (string, error) {
	if fieldID == 0 {
		return "", &models.ConfigurationError{Key: configKey, Reason: "custom field id is not set"}
	}
	key, err := r.gateway.FieldKey(ctx, fieldID)
	if err != nil {
		return "", fmt.Errorf("resolving custom field %d: %w", fieldID, err)
	}
	if key == "" {
		return "", &models.ConfigurationError{Key: configKey, Reason: fmt.Sprintf("custom field %d has no key", fieldID)}
	}
	return key, nil
}

// appendMissing posts, in thread order, every message whose text is not
// contained in any of existing. It returns the number of notes created.
func (r *Reconciler) appendMissing(ctx context.Context, dealID int64, thread models.Thread, existing []models.Note) (int, error) {
	added := 0
	for _, m := range thread.Messages {
		if containedInNotes(m.Text, existing) {
			continue
		}
		if _, err := r.gateway.CreateNote(ctx, dealID, FormatNote(m)); err != nil {
			return added, fmt.Errorf("adding message %s to deal %d: %w", m.ID, dealID, err)
		}
		added++
		r.observer.Progress(StepAddNote, fmt.Sprintf("message %s [%s %s]", m.ID, m.Time, m.Date))
		r.logEvent("note.added", map[string]any{"deal_id": dealID, "message_id": m.ID, "direction": string(m.Direction)})
	}
	return added, nil
}

func containedInNotes(text string, notes []models.Note) bool {
	for _, n := range notes {
		if strings.Contains(n.Content, text) {
			return true
		}
	}
	return false
}

func (r *Reconciler) logEvent(eventType string, data map[string]any) {
	if r.events != nil {
		_ = r.events.LogEvent(eventType, data) // Non-fatal: the event log is best effort.
	}
}
