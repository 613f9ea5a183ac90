// Package remote is the client for the content-management API this tool
// migrates decks between. The API is an external collaborator; this package
// covers only the surface the engines need: session sign-in, the listed
// read filters, create, and delete.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"github.com/starford/deckmigrate/internal/apperr"
)

// Server message that marks the soft "asset still referenced" condition.
const stillReferencedMarker = "There are cards that reference"

// Client is a session-authenticated API client. All calls are sequential
// and blocking; cancellation comes from the context passed per call.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for the API at baseURL (e.g. "http://host:4000/api").
// The session cookie from SignIn is held in the client's jar.
func New(baseURL string, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("remote: cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
		logger:  logger,
	}, nil
}

// SignIn authenticates and stores the session cookie.
func (c *Client) SignIn(ctx context.Context, username, password string) error {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	return c.do(ctx, http.MethodPost, "/auth/signin", nil, body, nil)
}

// SearchUsers runs the remote fuzzy user search.
func (c *Client) SearchUsers(ctx context.Context, search string) ([]User, error) {
	var users []User
	q := url.Values{"search": {search}}
	if err := c.do(ctx, http.MethodGet, "/users", q, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ResolveOwner finds the user with exactly the given username. The search
// endpoint matches on prefixes, so results are filtered again here.
func (c *Client) ResolveOwner(ctx context.Context, username string) (*User, error) {
	users, err := c.SearchUsers(ctx, username)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, apperr.NotFoundf("user %s", username)
}

// ListDecks returns every deck visible to the session.
func (c *Client) ListDecks(ctx context.Context) ([]Deck, error) {
	var decks []Deck
	if err := c.do(ctx, http.MethodGet, "/decks", nil, nil, &decks); err != nil {
		return nil, err
	}
	return decks, nil
}

// QueryDecksByName runs the filtered deck query endpoint.
func (c *Client) QueryDecksByName(ctx context.Context, name string) ([]Deck, error) {
	var out struct {
		Results []Deck `json:"results"`
	}
	q := url.Values{"filters[name]": {name}}
	if err := c.do(ctx, http.MethodGet, "/decks/get2", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DecksByNameAndOwner returns the decks owned by ownerID with the given
// name. Used by the conflict-rename probe.
func (c *Client) DecksByNameAndOwner(ctx context.Context, name string, ownerID int64) ([]Deck, error) {
	var decks []Deck
	q := url.Values{
		"deckName": {name},
		"ownerId":  {strconv.FormatInt(ownerID, 10)},
	}
	if err := c.do(ctx, http.MethodGet, "/decks", q, nil, &decks); err != nil {
		return nil, err
	}
	return decks, nil
}

// CreateDeck creates a deck and returns its new id.
func (c *Client) CreateDeck(ctx context.Context, payload CreateDeck) (int64, error) {
	var out created
	if err := c.do(ctx, http.MethodPost, "/decks", nil, payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateDeck updates an existing deck.
func (c *Client) UpdateDeck(ctx context.Context, id int64, payload UpdateDeck) error {
	return c.do(ctx, http.MethodPut, "/decks/"+strconv.FormatInt(id, 10), nil, payload, nil)
}

// DeleteDeck deletes a deck record.
func (c *Client) DeleteDeck(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/decks/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// CardsByDeck returns all cards of a deck, answers inlined.
func (c *Client) CardsByDeck(ctx context.Context, deckID int64) ([]Card, error) {
	var out struct {
		Data []Card `json:"data"`
	}
	q := url.Values{"deckId": {strconv.FormatInt(deckID, 10)}}
	if err := c.do(ctx, http.MethodGet, "/cards", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CardByID returns a single card.
func (c *Client) CardByID(ctx context.Context, id int64) (*Card, error) {
	var out struct {
		Data []Card `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/cards/"+strconv.FormatInt(id, 10), nil, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, apperr.NotFoundf("card %d", id)
	}
	return &out.Data[0], nil
}

// CreateCard creates a card and returns its new id.
func (c *Client) CreateCard(ctx context.Context, contents CardContents) (int64, error) {
	var out created
	body := map[string]CardContents{"contents": contents}
	if err := c.do(ctx, http.MethodPost, "/cards", nil, body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// DeleteCard deletes a card record.
func (c *Client) DeleteCard(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/cards/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// CreateAnswer creates an answer and returns its new id.
func (c *Client) CreateAnswer(ctx context.Context, payload CreateAnswer) (int64, error) {
	var out created
	if err := c.do(ctx, http.MethodPost, "/answers", nil, payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// AssetsByCard returns the assets attached to a card.
func (c *Client) AssetsByCard(ctx context.Context, cardID int64) ([]Asset, error) {
	var assets []Asset
	q := url.Values{"cardId": {strconv.FormatInt(cardID, 10)}}
	if err := c.do(ctx, http.MethodGet, "/assets", q, nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// AssetRefs returns the card-reference rows of an asset. An empty slice
// means no cards reference the asset anymore.
func (c *Client) AssetRefs(ctx context.Context, id int64) ([]Asset, error) {
	var assets []Asset
	if err := c.do(ctx, http.MethodGet, "/assets/"+strconv.FormatInt(id, 10), nil, nil, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// AssetByID returns a single asset's metadata.
func (c *Client) AssetByID(ctx context.Context, id int64) (*Asset, error) {
	assets, err := c.AssetRefs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, apperr.NotFoundf("asset %d", id)
	}
	return &assets[0], nil
}

// CreateAsset creates an asset metadata record and returns its new id. The
// binary payload is uploaded separately through a signed URL.
func (c *Client) CreateAsset(ctx context.Context, payload CreateAsset) (int64, error) {
	var out created
	if err := c.do(ctx, http.MethodPost, "/assets", nil, payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// DeleteAsset deletes an asset. When the server rejects the delete because
// cards still reference the asset, the returned error wraps
// apperr.ErrAssetReferenced so callers can continue.
func (c *Client) DeleteAsset(ctx context.Context, id int64) error {
	err := c.do(ctx, http.MethodDelete, "/assets/"+strconv.FormatInt(id, 10), nil, nil, nil)
	if err == nil {
		return nil
	}
	var remoteErr *apperr.RemoteError
	if errors.As(err, &remoteErr) && strings.Contains(remoteErr.Message, stillReferencedMarker) {
		return fmt.Errorf("asset %d: %w", id, apperr.ErrAssetReferenced)
	}
	return err
}

// GenerateURL asks the API for a signed URL for the binary payload of the
// asset with the given id. urlType is "get" or "put".
func (c *Client) GenerateURL(ctx context.Context, assetID int64, urlType, contentType string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	q := url.Values{
		"Key":         {strconv.FormatInt(assetID, 10)},
		"UrlType":     {urlType},
		"ContentType": {contentType},
	}
	if err := c.do(ctx, http.MethodGet, "/generate-url", q, nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Download fetches a binary payload from a signed URL.
func (c *Client) Download(ctx context.Context, signedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperr.RemoteError{Status: resp.StatusCode, Method: http.MethodGet, Path: signedURL}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read download: %w", err)
	}
	return data, nil
}

// Upload pushes a binary payload to a signed URL.
func (c *Client) Upload(ctx context.Context, signedURL, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("remote: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.RemoteError{Status: resp.StatusCode, Method: http.MethodPut, Path: signedURL}
	}
	return nil
}

// SharesByKey returns the shares with the given share key.
func (c *Client) SharesByKey(ctx context.Context, key string) ([]Share, error) {
	var shares []Share
	q := url.Values{"key": {key}}
	if err := c.do(ctx, http.MethodGet, "/shares", q, nil, &shares); err != nil {
		return nil, err
	}
	return shares, nil
}

// CreateShare creates a share for a deck.
func (c *Client) CreateShare(ctx context.Context, payload CreateShare) error {
	return c.do(ctx, http.MethodPost, "/shares", nil, payload, nil)
}

// StudySessions returns the study sessions for a deck and user.
func (c *Client) StudySessions(ctx context.Context, deckID, userID int64) ([]StudySession, error) {
	var sessions []StudySession
	q := url.Values{
		"deckId": {strconv.FormatInt(deckID, 10)},
		"userId": {strconv.FormatInt(userID, 10)},
	}
	if err := c.do(ctx, http.MethodGet, "/study-sessions", q, nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateStudySession creates a session and returns its new id.
func (c *Client) CreateStudySession(ctx context.Context, contents CreateStudySession) (int64, error) {
	var out created
	body := map[string]CreateStudySession{"contents": contents}
	if err := c.do(ctx, http.MethodPost, "/study-sessions", nil, body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// ResponsesBySession returns the responses recorded under a study session.
func (c *Client) ResponsesBySession(ctx context.Context, sessionID int64) ([]Response, error) {
	var responses []Response
	q := url.Values{"studySessionId": {strconv.FormatInt(sessionID, 10)}}
	if err := c.do(ctx, http.MethodGet, "/responses", q, nil, &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

// CreateResponse creates a response and returns its new id.
func (c *Client) CreateResponse(ctx context.Context, payload CreateResponse) (int64, error) {
	var out created
	if err := c.do(ctx, http.MethodPost, "/responses", nil, payload, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

type created struct {
	ID int64 `json:"id"`
}

// do runs one API request. Non-2xx replies become a *RemoteError carrying
// whatever error message the server body held.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, full, reader)
	if err != nil {
		return fmt.Errorf("remote: build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api call", slog.String("method", method), slog.String("path", path))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.RemoteError{
			Status:  resp.StatusCode,
			Method:  method,
			Path:    path,
			Message: errorMessage(data),
		}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// errorMessage extracts the server's error text from a failure body.
func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}

