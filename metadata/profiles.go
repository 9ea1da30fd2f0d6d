package metadata

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/poiesic/chronicle/core"
)

// Unclassified is the label used when an ordinal falls outside every range.
const Unclassified = "Unclassified"

// ClassifyBy selects which ordinal a profile's ranges are keyed on.
type ClassifyBy string

const (
	// BySeason classifies podcast episodes by season number.
	BySeason ClassifyBy = "season"
	// ByEpisode classifies by the leading integer of the episode number
	// (or of the sequence key for non-podcast sources).
	ByEpisode ClassifyBy = "episode"
)

// PeriodRange maps a closed interval of ordinals to labels.
type PeriodRange struct {
	Min      int
	Max      int
	Period   string
	Category string
}

// Profile describes how documents of one corpus are classified.
type Profile struct {
	Name       string
	Kind       core.SourceKind
	ClassifyBy ClassifyBy
	Ranges     []PeriodRange // Ascending, contiguous, non-overlapping
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

// Ordinal extracts the number the profile's ranges are keyed on.
// ok is false when the document carries no usable number.
func (p *Profile) Ordinal(doc *core.SourceDocument) (int, bool) {
	if p.ClassifyBy == BySeason {
		if doc.Podcast == nil || doc.Podcast.Season <= 0 {
			return 0, false
		}
		return doc.Podcast.Season, true
	}

	key := doc.SequenceKey
	if doc.Podcast != nil && doc.Podcast.EpisodeNumber != "" {
		key = doc.Podcast.EpisodeNumber
	}
	m := leadingDigits.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Classify returns the period and category labels for ordinal.
func (p *Profile) Classify(ordinal int) (period, category string) {
	for _, r := range p.Ranges {
		if ordinal >= r.Min && ordinal <= r.Max {
			return r.Period, r.Category
		}
	}
	return Unclassified, Unclassified
}

// ValidateProfile checks that ranges are well formed, ascending and contiguous.
func ValidateProfile(p *Profile) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	for i, r := range p.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("%w: %s: range %d has min %d > max %d", ErrInvalidProfile, p.Name, i, r.Min, r.Max)
		}
		if i > 0 && r.Min != p.Ranges[i-1].Max+1 {
			return fmt.Errorf("%w: %s: range %d starts at %d, want %d", ErrInvalidProfile, p.Name, i, r.Min, p.Ranges[i-1].Max+1)
		}
	}
	return nil
}

// BuiltinProfiles returns the classification tables for the known corpora.
func BuiltinProfiles() map[string]*Profile {
	return map[string]*Profile{
		"revolutions": {
			Name:       "revolutions",
			Kind:       core.SourceKindPodcast,
			ClassifyBy: BySeason,
			Ranges: []PeriodRange{
				{1, 1, "1640-1660", "English Civil War"},
				{2, 2, "1765-1783", "American Revolution"},
				{3, 3, "1789-1799", "French Revolution"},
				{4, 4, "1791-1804", "Haitian Revolution"},
				{5, 5, "1808-1833", "Spanish American Wars of Independence"},
				{6, 6, "1830-1831", "July Revolution & Revolutions of 1830"},
				{7, 7, "1848-1849", "German Revolution of 1848"},
				{8, 8, "1871", "Paris Commune"},
				{9, 9, "1910-1920", "Mexican Revolution"},
				{10, 10, "1917-1923", "Russian Revolution"},
			},
		},
		"history_of_rome": {
			Name:       "history_of_rome",
			Kind:       core.SourceKindPodcast,
			ClassifyBy: ByEpisode,
			Ranges: []PeriodRange{
				{1, 14, "The Kings (753-509 BC)", "Roman History"},
				{15, 24, "Early Republic (509-264 BC)", "Roman History"},
				{25, 34, "Punic Wars (264-146 BC)", "Roman History"},
				{35, 49, "Late Republic Crisis (133-49 BC)", "Roman History"},
				{50, 69, "Caesar and Civil Wars (49-31 BC)", "Roman History"},
				{70, 99, "Early Empire (31 BC-96 AD)", "Roman History"},
				{100, 129, "High Empire (96-235 AD)", "Roman History"},
				{130, 159, "Crisis of Third Century (235-284 AD)", "Roman History"},
				{160, 179, "Late Empire (284-476 AD)", "Roman History"},
				{180, math.MaxInt, "Fall of Rome (476-550 AD)", "Roman History"},
			},
		},
	}
}

// genericProfile is used for corpora without a classification table.
func genericProfile(name string) *Profile {
	return &Profile{Name: name, Kind: core.SourceKindDocument, ClassifyBy: ByEpisode}
}
