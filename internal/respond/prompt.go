package respond

import (
	"fmt"
	"strings"

	"barfly/internal/domain"
)

// Prompt sections are assembled in a fixed order; when the assembled system
// prompt would exceed the budget, lower-priority sections are dropped first.
// Priorities: persona and task instructions are never dropped, knowledge
// summaries go before user context, entities go first.
const (
	prioPersona   = 100
	prioTask      = 90
	prioProfile   = 60
	prioKnowledge = 50
	prioEntities  = 30
)

type section struct {
	name     string
	text     string
	priority int
}

const persona = "You are Barfly, a sharp, friendly game-day concierge. " +
	"You help people figure out who's likely to win tonight and where to watch. " +
	"Keep replies short, concrete, and conversational. Never invent scores or odds."

var taskInstructions = map[domain.Intent]string{
	domain.IntentMatchup:   "The user wants a game prediction. Lead with the pick, mention the line if you have one, and hedge honestly when the data is thin.",
	domain.IntentVenue:     "The user wants somewhere to watch. Recommend one venue with a reason, and offer an alternative if the context gives you one.",
	domain.IntentSmalltalk: "The user is just chatting. Be warm and brief; don't force sports talk.",
	domain.IntentHelp:      "Explain in two sentences what you can do: game predictions and venue recommendations.",
	domain.IntentGeneral:   "Answer helpfully and briefly; steer toward games or venues only if it fits.",
}

// buildSystemPrompt assembles the system prompt sections for this message and
// trims to budget, lowest priority first.
func buildSystemPrompt(cls domain.Classification, bundle *domain.ContextBundle, kind domain.ResponseKind, budget int) string {
	task := taskInstructions[cls.Intent]
	if task == "" {
		task = taskInstructions[domain.IntentGeneral]
	}
	if kind == domain.KindReflection {
		task = "Write a short reflective follow-up on the conversation so far: one observation, one question. No lists."
	}

	sections := []section{
		{name: "persona", text: persona, priority: prioPersona},
		{name: "task", text: task, priority: prioTask},
	}

	if bundle != nil {
		if bundle.Profile != nil {
			sections = append(sections, section{
				name:     "profile",
				text:     profileSection(bundle.Profile),
				priority: prioProfile,
			})
		}
		if ks := knowledgeSection(bundle.Knowledge); ks != "" {
			sections = append(sections, section{name: "knowledge", text: ks, priority: prioKnowledge})
		}
		if es := entitySection(bundle.Entities); es != "" {
			sections = append(sections, section{name: "entities", text: es, priority: prioEntities})
		}
	}

	return assemble(fitBudget(sections, budget))
}

// fitBudget drops whole sections, lowest priority first, until the assembled
// text fits. Assembly order is preserved.
func fitBudget(sections []section, budget int) []section {
	if budget <= 0 {
		return sections
	}
	for total(sections) > budget && len(sections) > 2 {
		lowest := -1
		for i, s := range sections {
			if lowest < 0 || s.priority < sections[lowest].priority {
				lowest = i
			}
		}
		if sections[lowest].priority >= prioTask {
			break // only persona/task left; nothing droppable
		}
		sections = append(sections[:lowest], sections[lowest+1:]...)
	}
	return sections
}

func total(sections []section) int {
	n := 0
	for _, s := range sections {
		n += len(s.text) + 2
	}
	return n
}

func assemble(sections []section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, s.text)
	}
	return strings.Join(parts, "\n\n")
}

func profileSection(p *domain.Profile) string {
	var b strings.Builder
	b.WriteString("About the user:")
	if p.Name != "" {
		fmt.Fprintf(&b, " name %s.", p.Name)
	}
	if p.HomeCity != "" {
		fmt.Fprintf(&b, " Home city %s.", p.HomeCity)
	}
	if len(p.FavoriteTeams) > 0 {
		fmt.Fprintf(&b, " Follows %s.", strings.Join(p.FavoriteTeams, ", "))
	}
	return b.String()
}

func knowledgeSection(results map[string]*domain.ProviderResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Live context:")
	// Stable iteration: named providers first.
	for _, name := range []string{"oddsfeed", "venuebuzz"} {
		if r, ok := results[name]; ok && r.Summary != "" {
			fmt.Fprintf(&b, "\n- [%s] %s", name, r.Summary)
		}
	}
	for name, r := range results {
		if name == "oddsfeed" || name == "venuebuzz" || r.Summary == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- [%s] %s", name, r.Summary)
	}
	if b.Len() == len("Live context:") {
		return ""
	}
	return b.String()
}

func entitySection(ents domain.Entities) string {
	var parts []string
	if len(ents.Teams) > 0 {
		parts = append(parts, "teams: "+strings.Join(ents.Teams, ", "))
	}
	if len(ents.Venues) > 0 {
		parts = append(parts, "venues: "+strings.Join(ents.Venues, ", "))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Mentioned " + strings.Join(parts, "; ") + "."
}
