package intent

import (
	"strings"

	"barfly/internal/domain"
)

// knownTeams is the heuristic team vocabulary. Nicknames map to their
// canonical name so the providers get a stable topic string.
var knownTeams = map[string]string{
	"lakers":      "Lakers",
	"celtics":     "Celtics",
	"warriors":    "Warriors",
	"knicks":      "Knicks",
	"heat":        "Heat",
	"nuggets":     "Nuggets",
	"chiefs":      "Chiefs",
	"eagles":      "Eagles",
	"bills":       "Bills",
	"cowboys":     "Cowboys",
	"niners":      "49ers",
	"49ers":       "49ers",
	"yankees":     "Yankees",
	"dodgers":     "Dodgers",
	"red sox":     "Red Sox",
	"mets":        "Mets",
	"rangers":     "Rangers",
	"bruins":      "Bruins",
	"maple leafs": "Maple Leafs",
}

// venueCues are words that typically precede or follow a venue name.
var venueCues = []string{"bar", "pub", "tavern", "grill", "taproom", "brewery", "lounge"}

// ExtractEntities is the default EntityExtractor: it mines team names from a
// fixed vocabulary and venue names from capitalized words adjacent to venue
// cue words. It is intentionally fuzzy; swap it out behind
// domain.EntityExtractor for anything smarter.
func ExtractEntities(text string) domain.Entities {
	var ents domain.Entities
	lower := strings.ToLower(text)

	seen := make(map[string]bool)
	for nick, canonical := range knownTeams {
		if containsWord(lower, nick) && !seen[canonical] {
			seen[canonical] = true
			ents.Teams = append(ents.Teams, canonical)
		}
	}

	ents.Venues = extractVenues(text)
	return ents
}

// extractVenues looks for capitalized word runs immediately before a venue
// cue, e.g. "Rusty Anchor bar" -> "Rusty Anchor".
func extractVenues(text string) []string {
	words := strings.Fields(text)
	var venues []string
	seen := make(map[string]bool)

	for i, w := range words {
		if !isVenueCue(w) {
			continue
		}
		// Walk back over capitalized words.
		start := i
		for start > 0 && isCapitalized(words[start-1]) {
			start--
		}
		if start == i {
			continue
		}
		name := strings.Join(words[start:i], " ")
		name = strings.Trim(name, ".,!?")
		if name != "" && !seen[name] {
			seen[name] = true
			venues = append(venues, name)
		}
	}
	return venues
}

func isVenueCue(word string) bool {
	w := strings.ToLower(strings.Trim(word, ".,!?"))
	for _, cue := range venueCues {
		if w == cue {
			return true
		}
	}
	return false
}

func isCapitalized(word string) bool {
	w := strings.Trim(word, ".,!?")
	if w == "" {
		return false
	}
	r := rune(w[0])
	return r >= 'A' && r <= 'Z'
}

func containsWord(lower, needle string) bool {
	idx := strings.Index(lower, needle)
	for idx >= 0 {
		beforeOK := idx == 0 || !isAlnum(lower[idx-1])
		end := idx + len(needle)
		afterOK := end == len(lower) || !isAlnum(lower[end])
		if beforeOK && afterOK {
			return true
		}
		next := strings.Index(lower[idx+1:], needle)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isAlnum(b byte) bool {
	return ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}
