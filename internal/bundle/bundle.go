// Package bundle reads and writes the file representation of an exported
// deck: a metadata file holding the deck, its cards, assets, and share, and
// an optional responses file holding study sessions and responses. Both are
// flat {objects: [...]} collections discriminated by a "type" tag. Files are
// human-editable JSON with comments permitted; they are normalized through
// hujson before decoding and written back as plain indented JSON.
package bundle

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"

	"github.com/starford/deckmigrate/internal/apperr"
)

// Object type tags.
const (
	TypeDeck         = "deck"
	TypeCard         = "card"
	TypeAsset        = "asset"
	TypeShare        = "share"
	TypeStudySession = "studySession"
	TypeResponse     = "response"
)

// Deck is the single deck record of a metadata file.
type Deck struct {
	Type         string `json:"type"`
	ID           ID     `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Synopsis     string `json:"synopsis,omitempty"`
	TextToSpeech bool   `json:"textToSpeech"`
	Preface      bool   `json:"preface"`
	Feedback     bool   `json:"feedback"`
	ShowDontKnow bool   `json:"showDontKnow"`
}

// Card is one flashcard. DeckID is relative ("_N"). Question may embed an
// asset reference; see the ids package.
type Card struct {
	Type         string          `json:"type"`
	ID           ID              `json:"id"`
	DeckID       string          `json:"deckId"`
	Deck         string          `json:"deck,omitempty"`
	Question     string          `json:"question"`
	Hint         string          `json:"hint,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Answers      []*Answer       `json:"answers"`
	Algo         ID              `json:"algo,omitempty"`
	AlgoSettings json.RawMessage `json:"algoSettings,omitempty"`
}

// Answer is always inlined in its card. AssetID is the relative-tagged
// cross-reference recorded at export when Text embeds an asset link.
type Answer struct {
	ID         ID     `json:"id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	GroupIndex int    `json:"groupIndex,omitempty"`
	AssetID    string `json:"assetId,omitempty"`
}

// UnmarshalJSON accepts the legacy bare-string answer form and coerces it
// to {text, isCorrect: false}. Legacy answers predate rich text and never
// embed asset links.
func (a *Answer) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*a = Answer{Text: text}
		return nil
	}
	type answer Answer
	var full answer
	if err := json.Unmarshal(data, &full); err != nil {
		return err
	}
	*a = Answer(full)
	return nil
}

// Asset is the metadata record of a binary asset. The payload itself is a
// sibling file named FileName in the bundle directory. UserID is absolute
// ("&N"); CardID, when present, is the relative id of the card whose text
// referenced the asset.
type Asset struct {
	Type          string `json:"type"`
	ID            ID     `json:"id"`
	FileName      string `json:"fileName"`
	Name          string `json:"name"`
	FileType      string `json:"fileType"`
	UserID        string `json:"user_id"`
	LocalFilePath string `json:"localFilePath"`
	CardID        string `json:"cardId,omitempty"`
}

// Share is the deck-level access record. At most one per bundle.
type Share struct {
	Type                       string `json:"type"`
	Expiration                 string `json:"expiration"`
	DefaultIsAdminMode         bool   `json:"defaultIsAdminMode"`
	DefaultIsRandomMode        bool   `json:"defaultIsRandomMode"`
	DefaultIsTextToSpeechMode  bool   `json:"defaultIsTextToSpeechMode"`
	DefaultIsSaveResponsesMode bool   `json:"defaultIsSaveResponsesMode"`
	DefaultLayoutID            ID     `json:"default_layout_id,omitempty"`
}

// StudySession belongs to the responses file. DeckID is relative, UserID
// absolute.
type StudySession struct {
	Type      string  `json:"type"`
	ID        ID      `json:"id"`
	DeckID    string  `json:"deck_id"`
	UserID    string  `json:"user_id"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
	TestAuto  string  `json:"test_auto,omitempty"`
}

// Response belongs to the responses file. All foreign keys are relative;
// AnswerID may be "_null" for responses recorded before answers carried a
// foreign key.
type Response struct {
	Type           string `json:"type"`
	ID             ID     `json:"id"`
	StudySessionID string `json:"study_session_id"`
	CardID         string `json:"card_id"`
	AnswerID       string `json:"answer_id"`
	UserID         string `json:"user_id,omitempty"`
	IsCorrect      bool   `json:"is_correct,omitempty"`
	CreatedOn      string `json:"created_on,omitempty"`
}

// Bundle is the typed view of one bundle's object collections. Slices keep
// file order; lookups are linear scans, acceptable at single-deck sizes.
type Bundle struct {
	Decks     []*Deck
	Cards     []*Card
	Assets    []*Asset
	Shares    []*Share
	Sessions  []*StudySession
	Responses []*Response
}

type objectFile struct {
	Objects []json.RawMessage `json:"objects"`
}

type typeProbe struct {
	Type string `json:"type"`
}

// Parse decodes one bundle file. Objects of unrecognized types are ignored,
// matching the untyped-collection contract of the format.
func Parse(data []byte) (*Bundle, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("bundle: standardize: %w", err)
	}
	var file objectFile
	if err := json.Unmarshal(std, &file); err != nil {
		return nil, fmt.Errorf("bundle: decode: %w", err)
	}

	b := &Bundle{}
	for i, raw := range file.Objects {
		var probe typeProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("bundle: object %d: %w", i, err)
		}
		if err := b.add(probe.Type, raw); err != nil {
			return nil, fmt.Errorf("bundle: object %d (%s): %w", i, probe.Type, err)
		}
	}
	return b, nil
}

func (b *Bundle) add(typ string, raw json.RawMessage) error {
	switch typ {
	case TypeDeck:
		v := &Deck{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Decks = append(b.Decks, v)
	case TypeCard:
		v := &Card{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Cards = append(b.Cards, v)
	case TypeAsset:
		v := &Asset{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Assets = append(b.Assets, v)
	case TypeShare:
		v := &Share{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Shares = append(b.Shares, v)
	case TypeStudySession:
		v := &StudySession{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Sessions = append(b.Sessions, v)
	case TypeResponse:
		v := &Response{}
		if err := json.Unmarshal(raw, v); err != nil {
			return err
		}
		b.Responses = append(b.Responses, v)
	}
	return nil
}

// ValidateMetadata checks the structural invariant of a metadata file.
func (b *Bundle) ValidateMetadata() error {
	if len(b.Decks) != 1 {
		return apperr.Validationf("exactly one deck expected in metadata file, %d found", len(b.Decks))
	}
	return nil
}

// Deck returns the bundle's single deck. Callers must have run
// ValidateMetadata first.
func (b *Bundle) Deck() *Deck {
	return b.Decks[0]
}

// CardByID returns the card with the given bundle-local id, or nil.
func (b *Bundle) CardByID(id string) *Card {
	for _, c := range b.Cards {
		if c.ID.String() == id {
			return c
		}
	}
	return nil
}

// AssetByID returns the asset with the given bundle-local id, or nil.
func (b *Bundle) AssetByID(id string) *Asset {
	for _, a := range b.Assets {
		if a.ID.String() == id {
			return a
		}
	}
	return nil
}

// SessionResponses returns the responses belonging to the study session
// with the given relative-tagged id.
func (b *Bundle) SessionResponses(taggedSessionID string) []*Response {
	var out []*Response
	for _, r := range b.Responses {
		if r.StudySessionID == taggedSessionID {
			out = append(out, r)
		}
	}
	return out
}

// Marshal serializes the bundle back to its file form. Objects are grouped
// by type in dependency order; type tags are stamped so hand-built bundles
// round-trip correctly.
func (b *Bundle) Marshal() ([]byte, error) {
	var objects []any
	for _, d := range b.Decks {
		d.Type = TypeDeck
		objects = append(objects, d)
	}
	for _, a := range b.Assets {
		a.Type = TypeAsset
		objects = append(objects, a)
	}
	for _, c := range b.Cards {
		c.Type = TypeCard
		objects = append(objects, c)
	}
	for _, s := range b.Shares {
		s.Type = TypeShare
		objects = append(objects, s)
	}
	for _, s := range b.Sessions {
		s.Type = TypeStudySession
		objects = append(objects, s)
	}
	for _, r := range b.Responses {
		r.Type = TypeResponse
		objects = append(objects, r)
	}
	data, err := json.MarshalIndent(map[string]any{"objects": objects}, "", " ")
	if err != nil {
		return nil, fmt.Errorf("bundle: encode: %w", err)
	}
	return append(data, '\n'), nil
}
