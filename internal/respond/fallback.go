package respond

import (
	"fmt"

	"barfly/internal/domain"
)

// fallbackMaxChars bounds every template path independently of the channel
// limit, so the fallback is safe even if truncation is misconfigured.
const fallbackMaxChars = 600

// Fallback is the deterministic backstop of last resort. It never touches
// the network and always returns a non-empty, bounded string, keyed on the
// reply kind and whatever context survived aggregation.
func Fallback(kind domain.ResponseKind, cls domain.Classification, bundle *domain.ContextBundle) string {
	var text string

	switch kind {
	case domain.KindError:
		text = "Having trouble on my end right now — give me another try in a minute."
	case domain.KindReflection:
		text = "Quick thought: we've been talking games and spots for a bit. Anything tonight you want me to dig into?"
	default:
		text = regularFallback(cls, bundle)
	}

	return Truncate(text, fallbackMaxChars)
}

func regularFallback(cls domain.Classification, bundle *domain.ContextBundle) string {
	// Prefer a provider-supplied one-liner when one survived.
	if bundle != nil {
		if r, ok := bundle.Knowledge["oddsfeed"]; ok && r.Summary != "" {
			return fmt.Sprintf("Here's what I've got: %s", r.Summary)
		}
		if r, ok := bundle.Knowledge["venuebuzz"]; ok && r.Summary != "" {
			return fmt.Sprintf("Word on the street: %s", r.Summary)
		}
	}

	switch cls.Intent {
	case domain.IntentMatchup:
		if bundle != nil && len(bundle.Entities.Teams) > 0 {
			return fmt.Sprintf("I can't pull live odds for the %s right now, but check back closer to tip-off and I'll have a read.", bundle.Entities.Teams[0])
		}
		return "I can't reach the odds feed right now — ask me again in a bit and I'll have a prediction for you."
	case domain.IntentVenue:
		return "My venue radar is offline at the moment. Tell me a neighborhood and I'll check again shortly."
	case domain.IntentSmalltalk:
		return "Hey! Ask me who wins tonight or where to catch the game."
	case domain.IntentHelp:
		return "I do two things: game predictions (\"who wins Lakers tonight?\") and watch spots (\"where should I watch the game?\")."
	default:
		return "I'm best at game predictions and picking a spot to watch. What are you looking for?"
	}
}
