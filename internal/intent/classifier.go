// Package intent classifies inbound message text into a small set of
// intents using keyword and phrase scoring. The classifier is pure,
// synchronous, and deterministic; it never fails, and unmatched text yields
// the general catch-all intent.
package intent

import (
	"sort"
	"strings"

	"barfly/internal/domain"
)

const (
	phraseWeight = 2.0
	wordWeight   = 1.0

	// empiricalMaxScore normalizes confidence. A message rarely hits more
	// than a few keywords plus a phrase.
	empiricalMaxScore = 6.0

	// confidenceFloor keeps "no match" a small positive confidence instead
	// of zero.
	confidenceFloor = 0.05
)

// Definition declares the vocabulary for one intent.
type Definition struct {
	Intent   domain.Intent
	Phrases  []string // matched as substrings, weighted 2x
	Keywords []string // matched as whole tokens, weighted 1x
}

// Classifier scores message text against its intent definitions.
type Classifier struct {
	defs []Definition
}

// NewClassifier builds a classifier with the default game-day vocabulary.
func NewClassifier() *Classifier {
	return NewClassifierWith(defaultDefinitions())
}

// NewClassifierWith builds a classifier from custom definitions. Definitions
// are sorted by intent name so tie-breaking is stable regardless of the
// order the caller supplies them in.
func NewClassifierWith(defs []Definition) *Classifier {
	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Intent < sorted[j].Intent })
	return &Classifier{defs: sorted}
}

// Classify scores text against every intent and returns the winner. Ties are
// broken lexicographically by intent name.
func (c *Classifier) Classify(text string) domain.Classification {
	normalized := strings.ToLower(text)
	tokens := tokenize(normalized)

	best := domain.Classification{Intent: domain.IntentGeneral, Confidence: confidenceFloor}
	bestScore := 0.0

	for _, def := range c.defs {
		score := 0.0
		var matched []string

		for _, phrase := range def.Phrases {
			if strings.Contains(normalized, phrase) {
				score += phraseWeight
				matched = append(matched, phrase)
			}
		}
		for _, kw := range def.Keywords {
			if _, ok := tokens[kw]; ok {
				score += wordWeight
				matched = append(matched, kw)
			}
		}

		// Strictly greater: defs are sorted by name, so the first of any
		// tied pair wins deterministically.
		if score > bestScore {
			bestScore = score
			best = domain.Classification{
				Intent:  def.Intent,
				Matched: matched,
			}
		}
	}

	conf := bestScore / empiricalMaxScore
	if conf > 1.0 {
		conf = 1.0
	}
	if conf < confidenceFloor {
		conf = confidenceFloor
	}
	best.Confidence = conf
	return best
}

// Conversational reports whether the intent gains nothing from knowledge
// lookups; the aggregator uses it to pick the minimal context variant.
func Conversational(in domain.Intent) bool {
	return in == domain.IntentSmalltalk || in == domain.IntentHelp
}

func tokenize(normalized string) map[string]struct{} {
	fields := strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.Trim(f, "'")] = struct{}{}
	}
	return set
}

func defaultDefinitions() []Definition {
	return []Definition{
		{
			Intent:  domain.IntentMatchup,
			Phrases: []string{"who wins", "who will win", "what are the odds", "game tonight"},
			Keywords: []string{
				"odds", "spread", "prediction", "predict", "score", "matchup",
				"game", "playoffs", "bet", "line", "favorite", "underdog",
			},
		},
		{
			Intent:  domain.IntentVenue,
			Phrases: []string{"where to watch", "where should i watch", "good bar", "happy hour"},
			Keywords: []string{
				"bar", "pub", "venue", "spot", "patio", "crowd", "watch",
				"drinks", "nearby", "downtown",
			},
		},
		{
			Intent:   domain.IntentSmalltalk,
			Phrases:  []string{"how are you", "what's up", "good morning", "good night"},
			Keywords: []string{"hey", "hi", "hello", "thanks", "thank", "lol", "haha", "bye"},
		},
		{
			Intent:   domain.IntentHelp,
			Phrases:  []string{"what can you do", "how do you work", "how does this work"},
			Keywords: []string{"help", "commands", "usage"},
		},
	}
}
