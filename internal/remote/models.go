package remote

import "encoding/json"

// User is a remote account, resolved from the fuzzy user search.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Deck is the remote deck record.
type Deck struct {
	ID                     int64           `json:"id"`
	Name                   string          `json:"name"`
	UserID                 int64           `json:"user_id"`
	Description            string          `json:"description,omitempty"`
	Synopsis               string          `json:"synopsis,omitempty"`
	TextToSpeech           bool            `json:"textToSpeech"`
	Preface                bool            `json:"preface"`
	Feedback               bool            `json:"feedback"`
	ShowDontKnow           bool            `json:"showDontKnow"`
	ShowDuration           bool            `json:"showDuration"`
	DefaultPrefaceSettings json.RawMessage `json:"defaultPrefaceSettings,omitempty"`
	ShareKey               string          `json:"shareKey,omitempty"`
}

// CreateDeck is the payload for deck creation.
type CreateDeck struct {
	Name             string `json:"name"`
	UserID           int64  `json:"userId"`
	Description      string `json:"description,omitempty"`
	TextToSpeech     bool   `json:"textToSpeech"`
	Preface          bool   `json:"preface"`
	Feedback         bool   `json:"feedback"`
	ShowDontKnow     bool   `json:"showDontKnow"`
	AnswerLanguage   string `json:"answerLanguage,omitempty"`
	QuestionLanguage string `json:"questionLanguage,omitempty"`
	TestAuto         string `json:"testAuto,omitempty"`
}

// UpdateDeck is the payload for the conflict-rename update. Only the fixed
// allow-list of fields is carried over from the colliding deck.
type UpdateDeck struct {
	Name                   string          `json:"name"`
	UserID                 int64           `json:"userId"`
	Feedback               bool            `json:"feedback"`
	Preface                bool            `json:"preface"`
	ShowDuration           bool            `json:"showDuration"`
	DefaultPrefaceSettings json.RawMessage `json:"defaultPrefaceSettings,omitempty"`
	ShowDontKnow           bool            `json:"showDontKnow"`
}

// Card is the remote card record. The API nests the answer list under
// "answer" (singular).
type Card struct {
	ID           int64           `json:"id"`
	Question     string          `json:"question"`
	Hint         string          `json:"hint,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	AlgorithmID  int64           `json:"algorithm_id,omitempty"`
	AlgoSettings json.RawMessage `json:"algoSettings,omitempty"`
	Answers      []Answer        `json:"answer"`
}

// CardContents is the payload for card creation, nested under "contents".
type CardContents struct {
	Question              string          `json:"question"`
	Answer                *string         `json:"answer"`
	Deck                  int64           `json:"deck"`
	Hint                  string          `json:"hint,omitempty"`
	VerificationAlgorithm int64           `json:"verificationAlgorithm,omitempty"`
	AlgoSettings          json.RawMessage `json:"algoSettings,omitempty"`
	TestAuto              string          `json:"testAuto,omitempty"`
}

// Answer is the remote answer record.
type Answer struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	GroupIndex int    `json:"groupIndex,omitempty"`
}

// CreateAnswer is the payload for answer creation.
type CreateAnswer struct {
	Text       string `json:"text"`
	IsCorrect  bool   `json:"isCorrect"`
	CardID     int64  `json:"card_id"`
	GroupIndex int    `json:"groupIndex"`
}

// Asset is the remote asset metadata record. The binary payload lives
// behind the signed-URL endpoints.
type Asset struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	FileType string `json:"fileType"`
	UserID   int64  `json:"user_id"`
	CardID   int64  `json:"card_id,omitempty"`
}

// CreateAsset is the payload for asset metadata creation.
type CreateAsset struct {
	Name     string `json:"name"`
	FileType string `json:"fileType"`
	FileName string `json:"file_name"`
	UserID   int64  `json:"userId"`
	TestAuto string `json:"testAuto,omitempty"`
}

// Share is the remote share record for a deck.
type Share struct {
	Expiration                 string          `json:"expiration"`
	DefaultIsAdminMode         bool            `json:"defaultIsAdminMode"`
	DefaultIsRandomMode        bool            `json:"defaultIsRandomMode"`
	DefaultIsTextToSpeechMode  bool            `json:"defaultIsTextToSpeechMode"`
	DefaultIsSaveResponsesMode bool            `json:"defaultIsSaveResponsesMode"`
	DefaultLayoutID            json.RawMessage `json:"default_layout_id,omitempty"`
}

// CreateShare is the payload for share creation.
type CreateShare struct {
	DeckID               int64  `json:"deckId"`
	Expiration           string `json:"expiration"`
	CheckedAdmin         bool   `json:"checkedAdmin"`
	CheckedRandom        bool   `json:"checkedRandom"`
	CheckedSaveResponses bool   `json:"checkedSaveResponses"`
	CheckedTextToSpeech  bool   `json:"checkedTextToSpeech"`
	TestAuto             string `json:"testAuto,omitempty"`
}

// StudySession is the remote study-session record. The four aggregate
// fields are server-computed and read-only; CreateStudySession deliberately
// omits them.
type StudySession struct {
	ID                  int64   `json:"id"`
	DeckID              int64   `json:"deck_id"`
	UserID              int64   `json:"user_id"`
	StartTime           string  `json:"start_time"`
	EndTime             *string `json:"end_time"`
	ResponseCount       int64   `json:"response_count,omitempty"`
	ResponseDurationSum int64   `json:"response_duration_sum,omitempty"`
	CorrectCount        int64   `json:"correct_count,omitempty"`
	TotalScore          float64 `json:"total_score,omitempty"`
	TestAuto            string  `json:"test_auto,omitempty"`
}

// CreateStudySession is the payload for session creation, nested under
// "contents".
type CreateStudySession struct {
	DeckID    int64   `json:"deckId"`
	UserID    int64   `json:"userId"`
	StartTime string  `json:"start_time"`
	EndTime   *string `json:"end_time"`
	TestAuto  string  `json:"test_auto,omitempty"`
}

// Response is the remote response record. AnswerID is nullable.
type Response struct {
	ID             int64  `json:"id"`
	StudySessionID int64  `json:"study_session_id"`
	CardID         int64  `json:"card_id"`
	AnswerID       *int64 `json:"answer_id"`
	UserID         int64  `json:"user_id"`
	IsCorrect      bool   `json:"is_correct"`
	CreatedOn      string `json:"created_on"`
}

// CreateResponse is the payload for response creation.
type CreateResponse struct {
	StudySessionID int64  `json:"study_session_id"`
	CardID         int64  `json:"cardId"`
	AnswerID       *int64 `json:"answerId"`
	UserID         int64  `json:"userId"`
	IsCorrect      bool   `json:"is_correct"`
	CreatedOn      string `json:"created_on"`
	TestAuto       string `json:"test_auto,omitempty"`
}
