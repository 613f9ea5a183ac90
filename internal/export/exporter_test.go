package export_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/deckmigrate/internal"
	"github.com/starford/deckmigrate/internal/bundle"
	"github.com/starford/deckmigrate/internal/export"
	"github.com/starford/deckmigrate/internal/progress"
	"github.com/starford/deckmigrate/internal/remote"
	"github.com/starford/deckmigrate/internal/storage"
	"github.com/starford/deckmigrate/internal/testutil"
)

// seedDeck populates the fake with one deck: two cards, a shared asset
// referenced both as an attachment and from rich text, a share, and one
// study session with two responses.
func seedDeck(t *testing.T, f *testutil.FakeAPI) {
	t.Helper()
	f.AddUser(1, "alice")
	f.AddDeck(remote.Deck{ID: 10, Name: "Geography", UserID: 1, Preface: true, ShowDontKnow: true}, "sk-123")
	answer30 := int64(30)

	f.AddCard(10, remote.Card{
		ID:       20,
		Question: `Where is this? <img src="/api/assets/40">`,
		Answers: []remote.Answer{
			{ID: 30, Text: "Paris", IsCorrect: true, GroupIndex: 1},
			{ID: 31, Text: `<img src="/api/assets/40">`, GroupIndex: 1},
		},
	})
	f.AddCard(10, remote.Card{
		ID:       21,
		Question: "Capital of Spain?",
		Answers:  []remote.Answer{{ID: 32, Text: "Madrid", IsCorrect: true, GroupIndex: 1}},
	})

	f.AddAsset(remote.Asset{ID: 40, Name: "map", FileName: "map.png", FileType: "image/png", UserID: 1}, []byte("PNGDATA"), 20)

	f.AddShare(10, "sk-123", remote.Share{Expiration: "2024-05-06 07:08:09", DefaultIsAdminMode: true, DefaultIsSaveResponsesMode: true})

	f.AddSession(remote.StudySession{ID: 50, DeckID: 10, UserID: 1, StartTime: "2024-01-02 03:04:05"})
	f.AddResponse(remote.Response{ID: 60, StudySessionID: 50, CardID: 20, AnswerID: &answer30, UserID: 1, IsCorrect: true, CreatedOn: "2024-01-02 03:05:00"})
	f.AddResponse(remote.Response{ID: 61, StudySessionID: 50, CardID: 21, AnswerID: nil, UserID: 1})
}

func runExport(t *testing.T, mode internal.ResponsesMode) (*export.Result, string) {
	t.Helper()
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)
	seedDeck(t, f)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := remote.New(f.URL(), logger)
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	ctx := context.Background()
	if err := client.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "out")
	result, err := export.New(client, logger, progress.Discard{}).Run(ctx, export.Options{
		DeckName:      "Geography",
		OwnerUsername: "alice",
		Dir:           dir,
		Responses:     mode,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result, dir
}

func parseBundle(t *testing.T, dir, name string) *bundle.Bundle {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	b, err := bundle.Parse(data)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return b
}

func TestExport_Metadata(t *testing.T) {
	result, dir := runExport(t, internal.ResponsesNone)

	if result.DeckID != 10 || result.Cards != 2 || result.Assets != 1 {
		t.Errorf("result = %+v", result)
	}

	b := parseBundle(t, dir, storage.MetadataFile)
	if err := b.ValidateMetadata(); err != nil {
		t.Fatalf("ValidateMetadata: %v", err)
	}
	deck := b.Deck()
	if deck.Name != "Geography" || !deck.Preface || !deck.ShowDontKnow {
		t.Errorf("deck = %+v", deck)
	}

	card := b.CardByID("20")
	if card == nil {
		t.Fatal("card 20 missing from bundle")
	}
	if card.DeckID != "_10" {
		t.Errorf("card deckId = %q, want %q", card.DeckID, "_10")
	}
	if card.Deck != "Geography" {
		t.Errorf("card deck name = %q", card.Deck)
	}
	if len(card.Answers) != 2 {
		t.Fatalf("len(Answers) = %d, want 2", len(card.Answers))
	}
	// The answer embedding the asset link carries the relative
	// cross-reference; the plain answer does not.
	var linked, plain *bundle.Answer
	for _, a := range card.Answers {
		if a.ID.String() == "31" {
			linked = a
		}
		if a.ID.String() == "30" {
			plain = a
		}
	}
	if linked == nil || linked.AssetID != "_40" {
		t.Errorf("linked answer = %+v, want assetId _40", linked)
	}
	if plain == nil || plain.AssetID != "" {
		t.Errorf("plain answer = %+v, want no assetId", plain)
	}

	if _, err := os.Stat(filepath.Join(dir, storage.ResponsesFile)); !os.IsNotExist(err) {
		t.Error("responses file written in none mode")
	}
}

func TestExport_AssetEmittedOnce(t *testing.T) {
	_, dir := runExport(t, internal.ResponsesNone)
	b := parseBundle(t, dir, storage.MetadataFile)

	// Asset 40 is reachable as an attachment, from the card question, and
	// from an answer. One record, one payload file.
	if len(b.Assets) != 1 {
		t.Fatalf("len(Assets) = %d, want 1", len(b.Assets))
	}
	asset := b.Assets[0]
	if asset.ID.String() != "40" || asset.FileName != "map.png" {
		t.Errorf("asset = %+v", asset)
	}
	if asset.UserID != "&1" {
		t.Errorf("asset user_id = %q, want %q", asset.UserID, "&1")
	}

	data, err := os.ReadFile(filepath.Join(dir, "map.png"))
	if err != nil {
		t.Fatalf("read asset payload: %v", err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("payload = %q", data)
	}
}

func TestExport_Share(t *testing.T) {
	_, dir := runExport(t, internal.ResponsesNone)
	b := parseBundle(t, dir, storage.MetadataFile)

	if len(b.Shares) != 1 {
		t.Fatalf("len(Shares) = %d, want 1", len(b.Shares))
	}
	share := b.Shares[0]
	if !share.DefaultIsAdminMode || !share.DefaultIsSaveResponsesMode {
		t.Errorf("share = %+v", share)
	}
	if share.Expiration != "2024-05-06 07:08:09" {
		t.Errorf("expiration = %q", share.Expiration)
	}
}

func TestExport_Responses(t *testing.T) {
	result, dir := runExport(t, internal.ResponsesInclude)

	if result.Sessions != 1 || result.Responses != 2 {
		t.Errorf("result = %+v", result)
	}

	b := parseBundle(t, dir, storage.ResponsesFile)
	if len(b.Sessions) != 1 {
		t.Fatalf("len(Sessions) = %d, want 1", len(b.Sessions))
	}
	session := b.Sessions[0]
	if session.DeckID != "_10" || session.UserID != "&1" {
		t.Errorf("session refs = %q / %q", session.DeckID, session.UserID)
	}

	if len(b.Responses) != 2 {
		t.Fatalf("len(Responses) = %d, want 2", len(b.Responses))
	}
	for _, resp := range b.Responses {
		if resp.StudySessionID != "_50" {
			t.Errorf("response %s session = %q", resp.ID.String(), resp.StudySessionID)
		}
		switch resp.ID.String() {
		case "60":
			if resp.CardID != "_20" || resp.AnswerID != "_30" || !resp.IsCorrect {
				t.Errorf("response 60 = %+v", resp)
			}
		case "61":
			// A response with no answer foreign key travels as "_null".
			if resp.CardID != "_21" || resp.AnswerID != "_null" {
				t.Errorf("response 61 = %+v", resp)
			}
		default:
			t.Errorf("unexpected response id %q", resp.ID.String())
		}
	}
}

func TestExport_ResponsesOnlySkipsMetadata(t *testing.T) {
	result, dir := runExport(t, internal.ResponsesOnly)

	if result.Cards != 0 {
		t.Errorf("cards exported in responses-only mode: %+v", result)
	}
	if _, err := os.Stat(filepath.Join(dir, storage.MetadataFile)); !os.IsNotExist(err) {
		t.Error("metadata file written in responses-only mode")
	}
	if _, err := os.Stat(filepath.Join(dir, storage.ResponsesFile)); err != nil {
		t.Errorf("responses file missing: %v", err)
	}
}

func TestExport_UnknownDeck(t *testing.T) {
	f := testutil.NewFakeAPI()
	t.Cleanup(f.Close)
	f.AddUser(1, "alice")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := remote.New(f.URL(), logger)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := client.SignIn(ctx, "test_admin", "pw"); err != nil {
		t.Fatal(err)
	}

	_, err = export.New(client, logger, progress.Discard{}).Run(ctx, export.Options{
		DeckName:      "Nope",
		OwnerUsername: "alice",
		Dir:           t.TempDir(),
	})
	if err == nil {
		t.Fatal("export of unknown deck succeeded")
	}
}
