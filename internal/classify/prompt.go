package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperjump/taxonomia/internal/llm"
	"github.com/hyperjump/taxonomia/internal/models"
	"github.com/hyperjump/taxonomia/pkg/utils"
)

// Default sampling temperatures for the two calls.
const (
	DefaultClassifyTemperature = 0.2
	DefaultSummaryTemperature  = 0.5
)

// summaryItemLength is how many characters of each item are shown in the summary prompt.
const summaryItemLength = 50

// Prompts builds the two requests sent per analysis.
type Prompts struct {
	ClassifyTemperature float64
	SummaryTemperature  float64
}

// DefaultPrompts uses the default temperatures.
func DefaultPrompts() Prompts {
	return Prompts{
		ClassifyTemperature: DefaultClassifyTemperature,
		SummaryTemperature:  DefaultSummaryTemperature,
	}
}

type schemaItem struct {
	ItemText   string `json:"item_text" jsonschema:"required,description=Question or task text without numbering"`
	BloomLevel string `json:"bloom_level" jsonschema:"required,enum=Remember,enum=Understand,enum=Apply,enum=Analyze,enum=Evaluate,enum=Create"`
}

type schemaEnvelope struct {
	Items []schemaItem `json:"items" jsonschema:"required"`
}

var classificationSchema = &llm.Schema{
	Name:        "BloomClassification",
	Description: "Evaluable items of an assessment instrument with their Bloom level",
	Definition:  llm.GenerateSchema[schemaEnvelope](),
	ArrayField:  "items",
}

// BuildClassificationRequest returns the request asking the model to split text into
// items and classify each one.
func (p Prompts) BuildClassificationRequest(text string) llm.Request {
	var b strings.Builder
	b.WriteString("You are an expert in educational assessment and in the revised Bloom's Taxonomy.\n\n")
	b.WriteString("Analyze the following assessment instrument. Perform these steps:\n")
	b.WriteString("1. Identify every discrete question, item or task that a student must answer or perform. ")
	b.WriteString("Ignore headers, general instructions, scoring notes and student data fields.\n")
	b.WriteString("2. Classify each item into exactly one Bloom level. Use only these exact labels, ordered from lowest to highest cognitive complexity:\n")
	for _, level := range models.BloomLevels() {
		fmt.Fprintf(&b, "   - %s\n", level)
	}
	b.WriteString("3. Respond with a JSON array only. Each element must be an object with the keys ")
	b.WriteString("\"item_text\" (the item text with any numbering or bullet removed) and \"bloom_level\" (one of the labels above).\n")
	b.WriteString("4. If the text contains no evaluable items, respond with an empty array: []\n\n")
	b.WriteString("Example response:\n")
	b.WriteString(`[
  {"item_text": "Define photosynthesis.", "bloom_level": "Remember"},
  {"item_text": "Compare the causes of the First and Second World Wars.", "bloom_level": "Analyze"},
  {"item_text": "Design an experiment to measure the effect of light on plant growth.", "bloom_level": "Create"}
]`)
	b.WriteString("\n\nInstrument text:\n---\n")
	b.WriteString(text)
	b.WriteString("\n---\n")

	return llm.Request{
		Prompt:      b.String(),
		Temperature: p.ClassifyTemperature,
		JSON:        true,
		Schema:      classificationSchema,
	}
}

type summaryEntry struct {
	Item  string            `json:"item"`
	Level models.BloomLevel `json:"level"`
}

// BuildSummaryRequest returns the request for a short narrative of the level distribution.
func (p Prompts) BuildSummaryRequest(items []models.AnalysisItem) llm.Request {
	entries := make([]summaryEntry, len(items))
	counts := make(map[models.BloomLevel]int, len(items))
	for i, it := range items {
		entries[i] = summaryEntry{Item: utils.Truncate(it.ItemText, summaryItemLength), Level: it.BloomLevel}
		counts[it.BloomLevel]++
	}
	listing, _ := json.MarshalIndent(entries, "", "  ")

	var b strings.Builder
	b.WriteString("You are an expert in educational assessment. An instrument was classified with the revised Bloom's Taxonomy as follows:\n")
	b.Write(listing)
	b.WriteString("\n\nItems per level:\n")
	for _, level := range models.BloomLevels() {
		fmt.Fprintf(&b, "- %s: %d\n", level, counts[level])
	}
	fmt.Fprintf(&b, "Total items: %d\n\n", len(items))
	b.WriteString("Write a concise summary of 2 to 4 sentences describing the distribution of cognitive levels. ")
	b.WriteString("Name the most frequent levels and any levels that are underrepresented or missing. ")
	b.WriteString("Respond with plain text only.")

	return llm.Request{
		Prompt:      b.String(),
		Temperature: p.SummaryTemperature,
	}
}

// BuildClassificationRequest uses the default temperatures.
func BuildClassificationRequest(text string) llm.Request {
	return DefaultPrompts().BuildClassificationRequest(text)
}

// BuildSummaryRequest uses the default temperatures.
func BuildSummaryRequest(items []models.AnalysisItem) llm.Request {
	return DefaultPrompts().BuildSummaryRequest(items)
}
