package bundle

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/deckmigrate/internal/apperr"
)

const metadataFixture = `{
 "objects": [
  // Bundle files are hand-editable and may carry comments.
  {
   "type": "deck",
   "id": 10,
   "name": "Geography",
   "textToSpeech": false,
   "preface": true,
   "feedback": false,
   "showDontKnow": true
  },
  {
   "type": "asset",
   "id": 40,
   "fileName": "map.png",
   "name": "map",
   "fileType": "image/png",
   "user_id": "&1",
   "localFilePath": "",
   "cardId": "_20"
  },
  {
   "type": "card",
   "id": 20,
   "deckId": "_10",
   "question": "Where is this? <img src=\"/api/assets/40\">",
   "answers": [
    {"id": 30, "text": "Paris", "isCorrect": true},
    "legacy free text"
   ]
  },
  {
   "type": "share",
   "expiration": "2024-05-06T07:08:09Z",
   "defaultIsAdminMode": true,
   "defaultIsRandomMode": false,
   "defaultIsTextToSpeechMode": false,
   "defaultIsSaveResponsesMode": true
  },
 ]
}
`

func TestParse_Metadata(t *testing.T) {
	b, err := Parse([]byte(metadataFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := b.ValidateMetadata(); err != nil {
		t.Fatalf("ValidateMetadata: %v", err)
	}

	deck := b.Deck()
	if deck.Name != "Geography" || deck.ID.String() != "10" {
		t.Errorf("deck = %q id %q", deck.Name, deck.ID.String())
	}
	if !deck.Preface || !deck.ShowDontKnow {
		t.Errorf("deck flags not preserved: %+v", deck)
	}

	if len(b.Assets) != 1 {
		t.Fatalf("len(Assets) = %d, want 1", len(b.Assets))
	}
	asset := b.Assets[0]
	if asset.UserID != "&1" || asset.CardID != "_20" {
		t.Errorf("asset refs = %q / %q", asset.UserID, asset.CardID)
	}

	if len(b.Cards) != 1 {
		t.Fatalf("len(Cards) = %d, want 1", len(b.Cards))
	}
	card := b.Cards[0]
	if card.DeckID != "_10" {
		t.Errorf("card deckId = %q, want %q", card.DeckID, "_10")
	}
	if len(card.Answers) != 2 {
		t.Fatalf("len(Answers) = %d, want 2", len(card.Answers))
	}
	if card.Answers[0].Text != "Paris" || !card.Answers[0].IsCorrect {
		t.Errorf("answer 0 = %+v", card.Answers[0])
	}

	if len(b.Shares) != 1 || !b.Shares[0].DefaultIsAdminMode {
		t.Errorf("share not parsed: %+v", b.Shares)
	}
}

func TestParse_LegacyStringAnswer(t *testing.T) {
	b, err := Parse([]byte(metadataFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	legacy := b.Cards[0].Answers[1]
	if legacy.Text != "legacy free text" {
		t.Errorf("legacy text = %q", legacy.Text)
	}
	if legacy.IsCorrect {
		t.Error("legacy answer coerced with isCorrect = true")
	}
	if !legacy.ID.IsZero() {
		t.Errorf("legacy answer id = %q, want zero", legacy.ID.String())
	}
}

func TestParse_UnknownTypeIgnored(t *testing.T) {
	b, err := Parse([]byte(`{"objects":[{"type":"widget","id":1},{"type":"deck","id":2,"name":"d"}]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(b.Decks) != 1 {
		t.Errorf("len(Decks) = %d, want 1", len(b.Decks))
	}
}

func TestValidateMetadata_DeckCount(t *testing.T) {
	b, err := Parse([]byte(`{"objects":[]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = b.ValidateMetadata()
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestID_NumberAndString(t *testing.T) {
	b, err := Parse([]byte(`{"objects":[
		{"type":"studySession","id":50,"deck_id":"_10","user_id":"&1","start_time":"t","end_time":null},
		{"type":"response","id":"60","study_session_id":"_50","card_id":"_20","answer_id":"_null"}
	]}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := b.Sessions[0].ID.String(); got != "50" {
		t.Errorf("numeric id = %q, want %q", got, "50")
	}
	if b.Sessions[0].EndTime != nil {
		t.Errorf("end_time = %v, want nil", b.Sessions[0].EndTime)
	}
	if got := b.Responses[0].ID.String(); got != "60" {
		t.Errorf("string id = %q, want %q", got, "60")
	}
	if b.Responses[0].AnswerID != "_null" {
		t.Errorf("answer_id = %q, want %q", b.Responses[0].AnswerID, "_null")
	}
}

func TestSessionResponses(t *testing.T) {
	b := &Bundle{
		Responses: []*Response{
			{ID: "60", StudySessionID: "_50"},
			{ID: "61", StudySessionID: "_51"},
			{ID: "62", StudySessionID: "_50"},
		},
	}
	got := b.SessionResponses("_50")
	if len(got) != 2 || got[0].ID != "60" || got[1].ID != "62" {
		t.Errorf("SessionResponses = %+v", got)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	b, err := Parse([]byte(metadataFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := b.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	// Dependency order: the asset group precedes the card group.
	out := string(data)
	if !strings.Contains(out, `"id": 10`) {
		t.Errorf("numeric deck id not written back as a number:\n%s", out)
	}
	assetPos := strings.Index(out, `"type": "asset"`)
	cardPos := strings.Index(out, `"type": "card"`)
	if assetPos < 0 || cardPos < 0 || assetPos > cardPos {
		t.Errorf("asset group at %d, card group at %d", assetPos, cardPos)
	}

	again, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse round trip: %v", err)
	}
	if len(again.Cards) != 1 || again.Cards[0].Answers[1].Text != "legacy free text" {
		t.Errorf("round trip lost data: %+v", again.Cards)
	}
}
