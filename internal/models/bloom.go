package models

// BloomLevel is one of the six cognitive levels of the revised Bloom's Taxonomy.
// Values are the exact English labels; comparisons are case-sensitive.
type BloomLevel string

const (
	Remember   BloomLevel = "Remember"
	Understand BloomLevel = "Understand"
	Apply      BloomLevel = "Apply"
	Analyze    BloomLevel = "Analyze"
	Evaluate   BloomLevel = "Evaluate"
	Create     BloomLevel = "Create"
)

// LowestLevel is the level assigned when a classification carries an unrecognized label.
const LowestLevel = Remember

var bloomLevels = []BloomLevel{Remember, Understand, Apply, Analyze, Evaluate, Create}

var levelColors = map[BloomLevel]string{
	Remember:   "#3B82F6",
	Understand: "#10B981",
	Apply:      "#F59E0B",
	Analyze:    "#2563EB",
	Evaluate:   "#EC4899",
	Create:     "#EF4444",
}

// BloomLevels returns the six levels in increasing cognitive complexity.
// The returned slice is a copy.
func BloomLevels() []BloomLevel {
	out := make([]BloomLevel, len(bloomLevels))
	copy(out, bloomLevels)
	return out
}

// IsValid reports whether l is exactly one of the six labels.
func (l BloomLevel) IsValid() bool {
	return l.Rank() >= 0
}

// Rank returns the 0-based position of l in taxonomy order, or -1 if l is not valid.
func (l BloomLevel) Rank() int {
	for i, v := range bloomLevels {
		if v == l {
			return i
		}
	}
	return -1
}

// Color returns the chart color for l, or an empty string for invalid levels.
func (l BloomLevel) Color() string {
	return levelColors[l]
}

func (l BloomLevel) String() string {
	return string(l)
}
