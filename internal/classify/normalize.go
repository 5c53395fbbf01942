package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// fenceRE matches a response wrapped in a markdown code fence with an optional language tag.
var fenceRE = regexp.MustCompile("(?s)^```(\\w*)?\\s*\\n?(.*?)\\n?\\s*```$")

// OutcomeKind tags what happened to one raw classification entry.
type OutcomeKind int

const (
	// OutcomeValid is an entry with text and a recognized level.
	OutcomeValid OutcomeKind = iota
	// OutcomeDefaultedLevel is an entry whose level was unrecognized and replaced by the lowest level.
	OutcomeDefaultedLevel
	// OutcomeDropped is an entry without text or without a level.
	OutcomeDropped
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValid:
		return "valid"
	case OutcomeDefaultedLevel:
		return "defaulted_level"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Outcome is the result of normalizing one raw entry. Item has no ID yet.
type Outcome struct {
	Kind OutcomeKind
	Item models.AnalysisItem
	// RawLevel is the level as the model sent it, kept for DefaultedLevel diagnostics.
	RawLevel string
}

// StripFence removes a surrounding code fence, if any, and trims whitespace.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[2])
	}
	return s
}

// ParseOutcomes decodes raw as a JSON array and classifies each entry, preserving order.
// It returns ErrMalformedResponse when raw is not a JSON array.
func ParseOutcomes(raw string) ([]Outcome, error) {
	body := StripFence(raw)
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return nil, fmt.Errorf("%w: %v (payload: %q)", ErrMalformedResponse, err, utils.Truncate(body, 200))
	}
	if entries == nil {
		// "null" decodes without error but is not an array.
		return nil, fmt.Errorf("%w: expected a JSON array (payload: %q)", ErrMalformedResponse, utils.Truncate(body, 200))
	}

	outcomes := make([]Outcome, 0, len(entries))
	for _, e := range entries {
		outcomes = append(outcomes, classifyEntry(e))
	}
	return outcomes, nil
}

// rawItem is one classification entry as the model sent it. Pointers and raw JSON keep
// a missing key distinguishable from an empty or non-string value.
type rawItem struct {
	ItemText   *string         `json:"item_text"`
	BloomLevel json.RawMessage `json:"bloom_level"`
}

func classifyEntry(e json.RawMessage) Outcome {
	var raw rawItem
	if err := json.Unmarshal(e, &raw); err != nil || raw.ItemText == nil {
		return Outcome{Kind: OutcomeDropped}
	}
	text := strings.TrimSpace(*raw.ItemText)
	if text == "" {
		return Outcome{Kind: OutcomeDropped}
	}

	levelJSON := strings.TrimSpace(string(raw.BloomLevel))
	if levelJSON == "" || levelJSON == "null" || levelJSON == `""` {
		return Outcome{Kind: OutcomeDropped}
	}
	var label string
	if err := json.Unmarshal(raw.BloomLevel, &label); err != nil {
		// Numbers, objects and arrays are kept for the warning and defaulted.
		return defaulted(text, levelJSON)
	}
	level := models.BloomLevel(label)
	if !level.IsValid() {
		return defaulted(text, label)
	}
	return Outcome{
		Kind: OutcomeValid,
		Item: models.AnalysisItem{ItemText: text, BloomLevel: level},
	}
}

func defaulted(text, rawLevel string) Outcome {
	return Outcome{
		Kind:     OutcomeDefaultedLevel,
		Item:     models.AnalysisItem{ItemText: text, BloomLevel: models.LowestLevel},
		RawLevel: rawLevel,
	}
}

// Normalize turns a raw classification response into items with fresh IDs. Entries without
// text or level are dropped; unrecognized levels become models.LowestLevel with a warning.
func Normalize(raw string, ids IDGenerator, logger *zap.Logger) ([]models.AnalysisItem, error) {
	logger = utils.LoggerOrNop(logger)
	outcomes, err := ParseOutcomes(raw)
	if err != nil {
		return nil, err
	}

	items := make([]models.AnalysisItem, 0, len(outcomes))
	dropped := 0
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeDropped:
			dropped++
			continue
		case OutcomeDefaultedLevel:
			logger.Warn("invalid bloom level, defaulting",
				zap.String("level", o.RawLevel),
				zap.String("default", string(models.LowestLevel)),
				zap.String("item", utils.Truncate(o.Item.ItemText, 80)))
		}
		item := o.Item
		item.ID = ids.Next()
		items = append(items, item)
	}
	if dropped > 0 {
		logger.Debug("dropped incomplete entries", zap.Int("dropped", dropped), zap.Int("kept", len(items)))
	}
	return items, nil
}
