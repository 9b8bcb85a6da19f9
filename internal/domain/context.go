package domain

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	IntentMatchup   Intent = "matchup"   // game outcome / prediction questions
	IntentVenue     Intent = "venue"     // where-to-watch / venue recommendations
	IntentSmalltalk Intent = "smalltalk" // greetings and chit-chat
	IntentHelp      Intent = "help"      // what can you do
	IntentGeneral   Intent = "general"   // catch-all for unmatched text
)

// Classification is the intent classifier output. Confidence is always
// positive: unmatched text yields IntentGeneral with a small epsilon floor.
type Classification struct {
	Intent     Intent
	Confidence float64
	Matched    []string
}

// Entities are heuristically mined references from the message text.
type Entities struct {
	Teams  []string
	Venues []string
}

// EntityExtractor mines entities from free text. It is a pure, swappable
// strategy function.
type EntityExtractor func(text string) Entities

// ContextBundle aggregates everything the generator may use for one message.
// Every field is optional: the bundle must be usable even when every fetch
// failed. Knowledge holds one entry per provider that returned a result;
// absence of a key means the provider was skipped or failed.
type ContextBundle struct {
	Profile   *Profile
	History   []HistoryMessage
	Entities  Entities
	Knowledge map[string]*ProviderResult
}
