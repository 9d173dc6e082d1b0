package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/crmsync/pkg/models"
)

// pageLimit is the page size requested from list endpoints.
const pageLimit = 100

// PipedriveClient talks to a Pipedrive-style CRM REST API (v1). Every
// response carries a success flag; a false flag or a non-2xx status is
// returned as *models.GatewayError.
type PipedriveClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPipedriveClient creates a client from the CRM settings. logger may be nil.
func NewPipedriveClient(cfg models.CRMSettings, logger *slog.Logger) *PipedriveClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PipedriveClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:   cfg.APIToken,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	AdditionalData struct {
		Pagination struct {
			MoreItems bool `json:"more_items_in_collection"`
			NextStart int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

// FieldKey resolves a custom deal field id to its write key.
func (c *PipedriveClient) FieldKey(ctx context.Context, fieldID int64) (string, error) {
	var field struct {
		ID   int64  `json:"id"`
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	if _, err := c.do(ctx, "get deal field", http.MethodGet, "/dealFields/"+strconv.FormatInt(fieldID, 10), nil, nil, &field); err != nil {
		return "", err
	}
	return field.Key, nil
}

type apiPerson struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
}

func (p apiPerson) model() models.Person {
	return models.Person{ID: p.ID, Name: p.Name, FirstName: p.FirstName}
}

// SearchPersons runs a name search and returns the hits in relevance order.
func (c *PipedriveClient) SearchPersons(ctx context.Context, term string) ([]models.Person, error) {
	q := url.Values{}
	q.Set("term", term)
	q.Set("fields", "name")
	q.Set("limit", strconv.Itoa(pageLimit))

	var result struct {
		Items []struct {
			Item apiPerson `json:"item"`
		} `json:"items"`
	}
	if _, err := c.do(ctx, "search persons", http.MethodGet, "/persons/search", q, nil, &result); err != nil {
		return nil, err
	}
	persons := make([]models.Person, 0, len(result.Items))
	for _, it := range result.Items {
		persons = append(persons, it.Item.model())
	}
	return persons, nil
}

type apiDeal struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Deleted bool   `json:"deleted"`
	Status  string `json:"status"`
}

// ListPersonDeals returns the person's deals that are not deleted, in the
// order the API lists them.
func (c *PipedriveClient) ListPersonDeals(ctx context.Context, personID int64) ([]models.Deal, error) {
	var deals []models.Deal
	path := fmt.Sprintf("/persons/%d/deals", personID)
	err := c.paginate(ctx, "list person deals", path, url.Values{"status": {"all_not_deleted"}}, func(data json.RawMessage) error {
		var page []apiDeal
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		for _, d := range page {
			if d.Deleted || d.Status == "deleted" {
				continue
			}
			deals = append(deals, models.Deal{ID: d.ID, Title: d.Title, PersonID: personID})
		}
		return nil
	})
	return deals, err
}

type apiNote struct {
	ID      int64  `json:"id"`
	DealID  int64  `json:"deal_id"`
	Content string `json:"content"`
}

// ListDealNotes returns every note attached to the deal.
func (c *PipedriveClient) ListDealNotes(ctx context.Context, dealID int64) ([]models.Note, error) {
	var notes []models.Note
	q := url.Values{"deal_id": {strconv.FormatInt(dealID, 10)}}
	err := c.paginate(ctx, "list deal notes", "/notes", q, func(data json.RawMessage) error {
		var page []apiNote
		if err := json.Unmarshal(data, &page); err != nil {
			return err
		}
		for _, n := range page {
			notes = append(notes, models.Note{ID: n.ID, DealID: n.DealID, Content: n.Content})
		}
		return nil
	})
	return notes, err
}

// CreatePerson creates a person with the given display name.
func (c *PipedriveClient) CreatePerson(ctx context.Context, name string) (models.Person, error) {
	var p apiPerson
	if _, err := c.do(ctx, "create person", http.MethodPost, "/persons", nil, map[string]any{"name": name}, &p); err != nil {
		return models.Person{}, err
	}
	if p.Name == "" {
		p.Name = name
	}
	return p.model(), nil
}

// CreateDeal creates a deal with its custom field values.
func (c *PipedriveClient) CreateDeal(ctx context.Context, deal models.NewDeal) (models.Deal, error) {
	body := make(map[string]any, len(deal.Fields)+3)
	for k, v := range deal.Fields {
		body[k] = v
	}
	body["title"] = deal.Title
	body["person_id"] = deal.PersonID
	if deal.OwnerID != 0 {
		body["user_id"] = deal.OwnerID
	}

	var d apiDeal
	if _, err := c.do(ctx, "create deal", http.MethodPost, "/deals", nil, body, &d); err != nil {
		return models.Deal{}, err
	}
	return models.Deal{ID: d.ID, Title: d.Title, PersonID: deal.PersonID}, nil
}

// CreateNote attaches a note to a deal.
func (c *PipedriveClient) CreateNote(ctx context.Context, dealID int64, content string) (models.Note, error) {
	var n apiNote
	body := map[string]any{"deal_id": dealID, "content": content}
	if _, err := c.do(ctx, "create note", http.MethodPost, "/notes", nil, body, &n); err != nil {
		return models.Note{}, err
	}
	return models.Note{ID: n.ID, DealID: dealID, Content: content}, nil
}

// paginate walks a list endpoint page by page, handing each data array to fn.
func (c *PipedriveClient) paginate(ctx context.Context, op, path string, query url.Values, fn func(json.RawMessage) error) error {
	start := 0
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(pageLimit))

		var data json.RawMessage
		env, err := c.do(ctx, op, http.MethodGet, path, q, nil, &data)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := fn(data); err != nil {
				return &models.GatewayError{Op: op, Message: fmt.Sprintf("decoding page: %s", err)}
			}
		}
		if !env.AdditionalData.Pagination.MoreItems || env.AdditionalData.Pagination.NextStart <= start {
			return nil
		}
		start = env.AdditionalData.Pagination.NextStart
	}
}

// do performs one API call and decodes the envelope's data into out.
func (c *PipedriveClient) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) (*envelope, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("api_token", c.apiToken)
	endpoint := c.baseURL + path + "?" + q.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.GatewayError{Op: op, Message: redactToken(err.Error(), c.apiToken)}
	}
	defer resp.Body.Close()
	c.logger.Debug("crm request", "op", op, "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.GatewayError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("reading response: %s", err)}
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.GatewayError{Op: op, Status: resp.StatusCode, Message: env.Error}
	}
	if decodeErr != nil {
		return nil, &models.GatewayError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decoding response: %s", decodeErr)}
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, &models.GatewayError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, &models.GatewayError{Op: op, Status: resp.StatusCode, Message: fmt.Sprintf("decoding data: %s", err)}
		}
	}
	return &env, nil
}

// redactToken hides the API token in transport error messages, which quote the URL.
func redactToken(msg, token string) string {
	if token == "" {
		return msg
	}
	return strings.ReplaceAll(msg, url.QueryEscape(token), "REDACTED")
}
