// Package testutil provides an in-memory stand-in for the content-management
// API, backed by httptest. Engine tests seed it with records, run an engine
// against its URL, and inspect the create payloads it captured.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/deckmigrate/internal/remote"
)

// assetReferencedMessage mirrors the server rejection for deleting an asset
// that cards still reference.
const assetReferencedMessage = "There are cards that reference this asset"

// FakeDeck is a deck record plus the server-side fields the wire type
// does not carry.
type FakeDeck struct {
	remote.Deck
	ShareKey string
}

// FakeCard is a card record plus its deck linkage.
type FakeCard struct {
	remote.Card
	DeckID int64
}

// FakeShare is a share record plus its deck linkage and key.
type FakeShare struct {
	remote.Share
	DeckID int64
	Key    string
}

// FakeAPI holds the server state. Fields are exported so tests can seed
// and inspect them directly. Not safe for concurrent use; the engines
// issue requests strictly one at a time.
type FakeAPI struct {
	srv *httptest.Server

	Users     []remote.User
	Decks     map[int64]*FakeDeck
	Cards     map[int64]*FakeCard
	Assets    map[int64]*remote.Asset
	AssetRefs map[int64][]int64
	Blobs     map[int64][]byte
	Shares    []*FakeShare
	Sessions  map[int64]*remote.StudySession
	Responses []*remote.Response

	// Create payloads in arrival order, for import assertions.
	CreatedDecks     []remote.CreateDeck
	CreatedCards     []remote.CardContents
	CreatedAnswers   []remote.CreateAnswer
	CreatedAssets    []remote.CreateAsset
	CreatedShares    []remote.CreateShare
	CreatedSessions  []remote.CreateStudySession
	CreatedResponses []remote.CreateResponse

	// UpdatedDecks captures PUT payloads by deck id.
	UpdatedDecks map[int64]remote.UpdateDeck

	// SignedInAs is the username of the last successful sign-in.
	SignedInAs string

	nextID int64
}

// NewFakeAPI starts the server. Callers must Close it.
func NewFakeAPI() *FakeAPI {
	f := &FakeAPI{
		Decks:        map[int64]*FakeDeck{},
		Cards:        map[int64]*FakeCard{},
		Assets:       map[int64]*remote.Asset{},
		AssetRefs:    map[int64][]int64{},
		Blobs:        map[int64][]byte{},
		Sessions:     map[int64]*remote.StudySession{},
		UpdatedDecks: map[int64]remote.UpdateDeck{},
		nextID:       100,
	}

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signin", f.signIn)

		r.Group(func(r chi.Router) {
			r.Use(f.requireSession)

			r.Get("/users", f.searchUsers)

			r.Get("/decks", f.listDecks)
			r.Get("/decks/get2", f.queryDecks)
			r.Post("/decks", f.createDeck)
			r.Put("/decks/{id}", f.updateDeck)
			r.Delete("/decks/{id}", f.deleteDeck)

			r.Get("/cards", f.cardsByDeck)
			r.Get("/cards/{id}", f.cardByID)
			r.Post("/cards", f.createCard)
			r.Delete("/cards/{id}", f.deleteCard)

			r.Post("/answers", f.createAnswer)

			r.Get("/assets", f.assetsByCard)
			r.Get("/assets/{id}", f.assetRefs)
			r.Post("/assets", f.createAsset)
			r.Delete("/assets/{id}", f.deleteAsset)

			r.Get("/generate-url", f.generateURL)

			r.Get("/shares", f.sharesByKey)
			r.Post("/shares", f.createShare)

			r.Get("/study-sessions", f.studySessions)
			r.Post("/study-sessions", f.createSession)

			r.Get("/responses", f.responsesBySession)
			r.Post("/responses", f.createResponse)
		})
	})

	// Signed-URL payload endpoints live outside the session-guarded API.
	r.Get("/blobs/{id}", f.downloadBlob)
	r.Put("/blobs/{id}", f.uploadBlob)

	f.srv = httptest.NewServer(r)
	return f
}

// URL returns the API base URL including the /api prefix.
func (f *FakeAPI) URL() string {
	return f.srv.URL + "/api"
}

func (f *FakeAPI) Close() {
	f.srv.Close()
}

// NextID allocates a server-side id.
func (f *FakeAPI) NextID() int64 {
	f.nextID++
	return f.nextID
}

// AddUser seeds an account.
func (f *FakeAPI) AddUser(id int64, username string) {
	f.Users = append(f.Users, remote.User{ID: id, Username: username})
}

// AddDeck seeds a deck record.
func (f *FakeAPI) AddDeck(deck remote.Deck, shareKey string) {
	f.Decks[deck.ID] = &FakeDeck{Deck: deck, ShareKey: shareKey}
}

// AddCard seeds a card under a deck.
func (f *FakeAPI) AddCard(deckID int64, card remote.Card) {
	f.Cards[card.ID] = &FakeCard{Card: card, DeckID: deckID}
}

// AddAsset seeds an asset with its binary payload and the ids of the cards
// referencing it.
func (f *FakeAPI) AddAsset(asset remote.Asset, data []byte, referencingCards ...int64) {
	f.Assets[asset.ID] = &asset
	f.Blobs[asset.ID] = data
	f.AssetRefs[asset.ID] = append([]int64{}, referencingCards...)
}

// AddShare seeds a deck share.
func (f *FakeAPI) AddShare(deckID int64, key string, share remote.Share) {
	f.Shares = append(f.Shares, &FakeShare{Share: share, DeckID: deckID, Key: key})
}

// AddSession seeds a study session.
func (f *FakeAPI) AddSession(session remote.StudySession) {
	f.Sessions[session.ID] = &session
}

// AddResponse seeds a recorded response.
func (f *FakeAPI) AddResponse(resp remote.Response) {
	f.Responses = append(f.Responses, &resp)
}

func (f *FakeAPI) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("connect.sid"); err != nil {
			writeError(w, http.StatusUnauthorized, "not signed in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) signIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	f.SignedInAs = body.Username
	http.SetCookie(w, &http.Cookie{Name: "connect.sid", Value: "s%3Afake", Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) searchUsers(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	out := []remote.User{}
	for _, u := range f.Users {
		if strings.HasPrefix(u.Username, search) {
			out = append(out, u)
		}
	}
	writeJSON(w, out)
}

func (f *FakeAPI) listDecks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("deckName")
	owner := r.URL.Query().Get("ownerId")
	out := []remote.Deck{}
	for _, d := range f.Decks {
		if name != "" && d.Name != name {
			continue
		}
		if owner != "" && strconv.FormatInt(d.UserID, 10) != owner {
			continue
		}
		deck := d.Deck
		deck.ShareKey = d.ShareKey
		out = append(out, deck)
	}
	writeJSON(w, out)
}

func (f *FakeAPI) queryDecks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filters[name]")
	results := []remote.Deck{}
	for _, d := range f.Decks {
		if d.Name == name {
			deck := d.Deck
			deck.ShareKey = d.ShareKey
			results = append(results, deck)
		}
	}
	writeJSON(w, map[string]any{"results": results})
}

func (f *FakeAPI) createDeck(w http.ResponseWriter, r *http.Request) {
	var payload remote.CreateDeck
	if !readJSON(w, r, &payload) {
		return
	}
	f.CreatedDecks = append(f.CreatedDecks, payload)
	id := f.NextID()
	f.Decks[id] = &FakeDeck{Deck: remote.Deck{
		ID:           id,
		Name:         payload.Name,
		UserID:       payload.UserID,
		Description:  payload.Description,
		TextToSpeech: payload.TextToSpeech,
		Preface:      payload.Preface,
		Feedback:     payload.Feedback,
		ShowDontKnow: payload.ShowDontKnow,
	}}
	writeJSON(w, map[string]int64{"id": id})
}

func (f *FakeAPI) updateDeck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	deck, found := f.Decks[id]
	if !found {
		writeError(w, http.StatusNotFound, "deck not found")
		return
	}
	var payload remote.UpdateDeck
	if !readJSON(w, r, &payload) {
		return
	}
	f.UpdatedDecks[id] = payload
	deck.Name = payload.Name
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) deleteDeck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, found := f.Decks[id]; !found {
		writeError(w, http.StatusNotFound, "deck not found")
		return
	}
	delete(f.Decks, id)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) cardsByDeck(w http.ResponseWriter, r *http.Request) {
	deckID := r.URL.Query().Get("deckId")
	data := []remote.Card{}
	for _, c := range f.Cards {
		if strconv.FormatInt(c.DeckID, 10) == deckID {
			data = append(data, c.Card)
		}
	}
	writeJSON(w, map[string]any{"data": data})
}

func (f *FakeAPI) cardByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data := []remote.Card{}
	if c, found := f.Cards[id]; found {
		data = append(data, c.Card)
	}
	writeJSON(w, map[string]any{"data": data})
}

func (f *FakeAPI) createCard(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contents remote.CardContents `json:"contents"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	f.CreatedCards = append(f.CreatedCards, body.Contents)
	id := f.NextID()
	f.Cards[id] = &FakeCard{
		Card: remote.Card{
			ID:           id,
			Question:     body.Contents.Question,
			Hint:         body.Contents.Hint,
			AlgorithmID:  body.Contents.VerificationAlgorithm,
			AlgoSettings: body.Contents.AlgoSettings,
		},
		DeckID: body.Contents.Deck,
	}
	writeJSON(w, map[string]int64{"id": id})
}

func (f *FakeAPI) deleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, found := f.Cards[id]; !found {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	delete(f.Cards, id)
	for assetID, refs := range f.AssetRefs {
		kept := refs[:0]
		for _, cardID := range refs {
			if cardID != id {
				kept = append(kept, cardID)
			}
		}
		f.AssetRefs[assetID] = kept
	}
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) createAnswer(w http.ResponseWriter, r *http.Request) {
	var payload remote.CreateAnswer
	if !readJSON(w, r, &payload) {
		return
	}
	card, found := f.Cards[payload.CardID]
	if !found {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	f.CreatedAnswers = append(f.CreatedAnswers, payload)
	id := f.NextID()
	card.Answers = append(card.Answers, remote.Answer{
		ID:         id,
		Text:       payload.Text,
		IsCorrect:  payload.IsCorrect,
		GroupIndex: payload.GroupIndex,
	})
	writeJSON(w, map[string]int64{"id": id})
}

func (f *FakeAPI) assetsByCard(w http.ResponseWriter, r *http.Request) {
	cardID := r.URL.Query().Get("cardId")
	out := []remote.Asset{}
	for id, refs := range f.AssetRefs {
		for _, ref := range refs {
			if strconv.FormatInt(ref, 10) == cardID {
				asset := *f.Assets[id]
				asset.CardID = ref
				out = append(out, asset)
			}
		}
	}
	writeJSON(w, out)
}

// assetRefs returns one row per card still referencing the asset, matching
// the join the server runs for GET /assets/:id.
func (f *FakeAPI) assetRefs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	asset, found := f.Assets[id]
	if !found {
		writeJSON(w, []remote.Asset{})
		return
	}
	out := []remote.Asset{}
	for _, ref := range f.AssetRefs[id] {
		row := *asset
		row.CardID = ref
		out = append(out, row)
	}
	writeJSON(w, out)
}

func (f *FakeAPI) createAsset(w http.ResponseWriter, r *http.Request) {
	var payload remote.CreateAsset
	if !readJSON(w, r, &payload) {
		return
	}
	f.CreatedAssets = append(f.CreatedAssets, payload)
	id := f.NextID()
	f.Assets[id] = &remote.Asset{
		ID:       id,
		Name:     payload.Name,
		FileName: payload.FileName,
		FileType: payload.FileType,
		UserID:   payload.UserID,
	}
	writeJSON(w, map[string]int64{"id": id})
}

func (f *FakeAPI) deleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if _, found := f.Assets[id]; !found {
		writeError(w, http.StatusNotFound, "asset not found")
		return
	}
	if len(f.AssetRefs[id]) > 0 {
		writeError(w, http.StatusBadRequest, assetReferencedMessage)
		return
	}
	delete(f.Assets, id)
	delete(f.AssetRefs, id)
	delete(f.Blobs, id)
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) generateURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("Key")
	if r.URL.Query().Get("UrlType") == "" {
		writeError(w, http.StatusBadRequest, "missing UrlType")
		return
	}
	writeJSON(w, map[string]string{"url": f.srv.URL + "/blobs/" + key})
}

func (f *FakeAPI) downloadBlob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, found := f.Blobs[id]
	if !found {
		writeError(w, http.StatusNotFound, "no payload")
		return
	}
	w.Write(data)
}

func (f *FakeAPI) uploadBlob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	f.Blobs[id] = data
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) sharesByKey(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	out := []remote.Share{}
	for _, s := range f.Shares {
		if s.Key == key {
			out = append(out, s.Share)
		}
	}
	writeJSON(w, out)
}

func (f *FakeAPI) createShare(w http.ResponseWriter, r *http.Request) {
	var payload remote.CreateShare
	if !readJSON(w, r, &payload) {
		return
	}
	f.CreatedShares = append(f.CreatedShares, payload)
	f.Shares = append(f.Shares, &FakeShare{
		Share: remote.Share{
			Expiration:                 payload.Expiration,
			DefaultIsAdminMode:         payload.CheckedAdmin,
			DefaultIsRandomMode:        payload.CheckedRandom,
			DefaultIsSaveResponsesMode: payload.CheckedSaveResponses,
			DefaultIsTextToSpeechMode:  payload.CheckedTextToSpeech,
		},
		DeckID: payload.DeckID,
		Key:    "share-" + strconv.FormatInt(f.NextID(), 10),
	})
	w.WriteHeader(http.StatusOK)
}

func (f *FakeAPI) studySessions(w http.ResponseWriter, r *http.Request) {
	deckID := r.URL.Query().Get("deckId")
	userID := r.URL.Query().Get("userId")
	out := []remote.StudySession{}
	for _, s := range f.Sessions {
		if strconv.FormatInt(s.DeckID, 10) == deckID && strconv.FormatInt(s.UserID, 10) == userID {
			out = append(out, *s)
		}
	}
	writeJSON(w, out)
}

func (f *FakeAPI) createSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contents remote.CreateStudySession `json:"contents"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	f.CreatedSessions = append(f.CreatedSessions, body.Contents)
	id := f.NextID()
	f.Sessions[id] = &remote.StudySession{
		ID:        id,
		DeckID:    body.Contents.DeckID,
		UserID:    body.Contents.UserID,
		StartTime: body.Contents.StartTime,
		EndTime:   body.Contents.EndTime,
		TestAuto:  body.Contents.TestAuto,
	}
	writeJSON(w, map[string]int64{"id": id})
}

func (f *FakeAPI) responsesBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("studySessionId")
	out := []remote.Response{}
	for _, resp := range f.Responses {
		if strconv.FormatInt(resp.StudySessionID, 10) == sessionID {
			out = append(out, *resp)
		}
	}
	writeJSON(w, out)
}

func (f *FakeAPI) createResponse(w http.ResponseWriter, r *http.Request) {
	var payload remote.CreateResponse
	if !readJSON(w, r, &payload) {
		return
	}
	f.CreatedResponses = append(f.CreatedResponses, payload)
	id := f.NextID()
	f.Responses = append(f.Responses, &remote.Response{
		ID:             id,
		StudySessionID: payload.StudySessionID,
		CardID:         payload.CardID,
		AnswerID:       payload.AnswerID,
		UserID:         payload.UserID,
		IsCorrect:      payload.IsCorrect,
		CreatedOn:      payload.CreatedOn,
	})
	writeJSON(w, map[string]int64{"id": id})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad id")
		return 0, false
	}
	return id, true
}

func readJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
