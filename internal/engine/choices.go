package engine

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/pkg/prompts"
)

const (
	choiceCount    = 3
	choiceMinCount = 2
	choiceMinRunes = 8
	choiceMaxRunes = 60
	nearDupRatio   = 0.7
)

// FallbackChoices is offered whenever the generation pipeline produces
// nothing usable. Deliberately bland: the player must always have a way
// forward.
var FallbackChoices = []string{"Look around", "Move forward", "Wait"}

// preamblePrefixes are shapes that mark a line as chatter rather than an
// action, regardless of length.
var preamblePrefixes = []string{
	"here are", "here's", "sure", "okay", "options", "you could",
	"the player", "some possible", "possible actions", "1)", "choice",
}

// choiceBuckets classify a choice by its leading verb so the final list can
// mix one of each flavor.
var choiceBuckets = map[string][]string{
	"explore": {"look", "search", "examine", "inspect", "listen", "watch", "check", "read", "study", "peer"},
	"move":    {"move", "walk", "climb", "enter", "leave", "descend", "ascend", "follow", "approach", "retreat", "crawl", "head", "sneak", "back"},
}

// ChoiceGenerator produces the 2-3 actions offered after each turn.
type ChoiceGenerator struct {
	llm    services.LLMService
	logger *slog.Logger
	lower  cases.Caser
}

func NewChoiceGenerator(llm services.LLMService, logger *slog.Logger) *ChoiceGenerator {
	return &ChoiceGenerator{
		llm:    llm,
		logger: logger,
		lower:  cases.Lower(language.English),
	}
}

// Generate runs the full pipeline: raw generation, lexical filtering,
// context grounding, diversity selection, and a critic pass. Any step that
// empties the list degrades to the fallback triplet instead of failing, and
// a list that survives with a single entry is padded back to the minimum.
func (g *ChoiceGenerator) Generate(ctx context.Context, contextText string, seenElements, recentChoices []string, refImage []byte) []string {
	resp, err := g.llm.Chat(ctx, prompts.Choices(contextText, choiceCount, refImage))
	if err != nil {
		g.logger.Error("Choice generation failed, using fallback", "error", err)
		return fallback()
	}

	candidates := parseChoiceLines(resp.Message)
	candidates = g.lexicalFilter(candidates)
	if len(candidates) == 0 {
		return fallback()
	}

	candidates = g.groundingFilter(candidates, contextText, seenElements)
	if len(candidates) == 0 {
		return fallback()
	}

	candidates = g.diversityPick(candidates)
	if len(candidates) == 0 {
		return fallback()
	}

	final := g.criticPass(ctx, contextText, candidates, recentChoices)
	if len(final) == 0 {
		return fallback()
	}
	return g.pad(final)
}

func fallback() []string {
	return append([]string(nil), FallbackChoices...)
}

// pad tops a sub-minimum list up from the fallback set. The player is never
// offered fewer than two actions.
func (g *ChoiceGenerator) pad(choices []string) []string {
	have := make(map[string]bool)
	for _, c := range choices {
		have[g.lower.String(c)] = true
	}
	for _, fb := range FallbackChoices {
		if len(choices) >= choiceMinCount {
			break
		}
		if !have[g.lower.String(fb)] {
			choices = append(choices, fb)
		}
	}
	return choices
}

// parseChoiceLines splits a model reply into candidate lines, stripping
// bullets and numbering.
func parseChoiceLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.Trim(line, `"`)
		line = strings.TrimSuffix(line, ".")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// lexicalFilter drops preamble shapes, lines outside the length band, and
// case-insensitive duplicates.
func (g *ChoiceGenerator) lexicalFilter(candidates []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		lower := g.lower.String(c)
		if g.isPreamble(lower) {
			continue
		}
		n := len([]rune(c))
		if n < choiceMinRunes || n > choiceMaxRunes {
			continue
		}
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, c)
	}
	return out
}

func (g *ChoiceGenerator) isPreamble(lower string) bool {
	if strings.HasSuffix(lower, ":") {
		return true
	}
	for _, p := range preamblePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// groundingFilter keeps choices that share at least one content word with
// the scene context or the session's seen elements.
func (g *ChoiceGenerator) groundingFilter(candidates []string, contextText string, seenElements []string) []string {
	known := make(map[string]bool)
	for _, w := range ExtractElements(contextText) {
		known[w] = true
	}
	for _, el := range seenElements {
		known[g.lower.String(el)] = true
	}

	var out []string
	for _, c := range candidates {
		for _, w := range ExtractElements(c) {
			if known[w] {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// diversityPick drops near-duplicates and greedily assembles a list that
// spans the verb buckets where possible.
func (g *ChoiceGenerator) diversityPick(candidates []string) []string {
	var distinct []string
	for _, c := range candidates {
		dup := false
		for _, kept := range distinct {
			if g.nearDuplicate(c, kept) {
				dup = true
				break
			}
		}
		if !dup {
			distinct = append(distinct, c)
		}
	}

	if len(distinct) <= choiceCount {
		return distinct
	}

	// One per bucket first, then fill in encounter order.
	picked := make([]string, 0, choiceCount)
	used := make(map[string]bool)
	for _, bucket := range []string{"action", "explore", "move"} {
		for _, c := range distinct {
			if used[c] || bucketFor(c) != bucket {
				continue
			}
			picked = append(picked, c)
			used[c] = true
			break
		}
	}
	for _, c := range distinct {
		if len(picked) >= choiceCount {
			break
		}
		if !used[c] {
			picked = append(picked, c)
			used[c] = true
		}
	}
	return picked
}

// nearDuplicate reports substring containment or a token overlap ratio at
// or above the threshold.
func (g *ChoiceGenerator) nearDuplicate(a, b string) bool {
	la, lb := g.lower.String(a), g.lower.String(b)
	if strings.Contains(la, lb) || strings.Contains(lb, la) {
		return true
	}

	ta := strings.Fields(la)
	tb := make(map[string]bool)
	for _, t := range strings.Fields(lb) {
		tb[t] = true
	}
	if len(ta) == 0 || len(tb) == 0 {
		return false
	}
	shared := 0
	for _, t := range ta {
		if tb[t] {
			shared++
		}
	}
	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	return float64(shared)/float64(smaller) >= nearDupRatio
}

// bucketFor tags a choice by its leading verb. Unrecognized verbs land in
// the action bucket.
func bucketFor(choice string) string {
	fields := strings.Fields(strings.ToLower(choice))
	if len(fields) == 0 {
		return "action"
	}
	verb := fields[0]
	for bucket, verbs := range choiceBuckets {
		for _, v := range verbs {
			if verb == v {
				return bucket
			}
		}
	}
	return "action"
}

// criticPass asks the model to trim the candidates, then re-validates its
// answer: survivors must come from the candidate list and must not repeat a
// recently offered choice. A failed or useless critic keeps the pre-critic
// list instead.
func (g *ChoiceGenerator) criticPass(ctx context.Context, contextText string, candidates, recentChoices []string) []string {
	resp, err := g.llm.Chat(ctx, prompts.Critic(contextText, candidates, recentChoices))
	if err != nil {
		g.logger.Warn("Choice critic failed, keeping pre-critic list", "error", err)
		return g.dropRecent(clamp(candidates), recentChoices)
	}

	allowed := make(map[string]string)
	for _, c := range candidates {
		allowed[g.lower.String(c)] = c
	}

	var survivors []string
	for _, line := range parseChoiceLines(resp.Message) {
		if original, ok := allowed[g.lower.String(line)]; ok {
			survivors = append(survivors, original)
		}
	}
	survivors = g.dropRecent(survivors, recentChoices)
	if len(survivors) < 2 {
		return g.dropRecent(clamp(candidates), recentChoices)
	}
	return clamp(survivors)
}

func (g *ChoiceGenerator) dropRecent(choices, recentChoices []string) []string {
	recent := make(map[string]bool)
	for _, r := range recentChoices {
		recent[g.lower.String(r)] = true
	}
	var out []string
	for _, c := range choices {
		if !recent[g.lower.String(c)] {
			out = append(out, c)
		}
	}
	return out
}

func clamp(choices []string) []string {
	if len(choices) > choiceCount {
		return choices[:choiceCount]
	}
	return choices
}
