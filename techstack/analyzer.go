// Package techstack derives a language, framework and change-pattern
// profile from commit metadata alone, without access to source trees.
//
// Language scores are weighted by changed lines (additions + deletions).
// Framework tags come from marker file names and path rules. Change
// patterns come from keyword heuristics over commit messages and are
// approximate by nature.
package techstack

import (
	"sort"

	"githubactivity/models"
)

// Analyzer computes TechStackProfiles. Its tables are fixed at
// construction and it is safe for concurrent use.
type Analyzer struct {
	languages  LanguageResolver
	frameworks []FrameworkRule
	patterns   PatternRules
}

type Option func(*Analyzer)

func WithResolver(r LanguageResolver) Option {
	return func(a *Analyzer) { a.languages = r }
}

func WithFrameworkRules(rules []FrameworkRule) Option {
	return func(a *Analyzer) { a.frameworks = rules }
}

func WithPatternRules(rules PatternRules) Option {
	return func(a *Analyzer) { a.patterns = rules }
}

// New returns an analyzer using the built-in tables unless overridden.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		languages:  DefaultTable(),
		frameworks: DefaultFrameworkRules(),
		patterns:   DefaultPatternRules(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EmptyProfile is the profile of an empty commit set.
func EmptyProfile(subject string) models.TechStackProfile {
	return models.TechStackProfile{
		Subject:         subject,
		Languages:       map[string]models.LanguageScore{},
		Frameworks:      []string{},
		FrameworkScores: []models.FrameworkScore{},
		ChangePatterns:  map[string]int{},
	}
}

// Analyze profiles commits.
func (a *Analyzer) Analyze(subject string, commits []models.Commit) models.TechStackProfile {
	profile := EmptyProfile(subject)
	if len(commits) == 0 {
		return profile
	}

	weights := map[string]int64{}
	counts := map[string]int{}
	evidence := map[string]*models.FrameworkScore{}

	for _, c := range commits {
		profile.ChangePatterns[a.patterns.Classify(c.Message)]++

		for _, f := range c.Files {
			profile.FilesAnalyzed++
			w := f.Weight()
			if w < 0 {
				w = 0
			}

			if lang, ok := a.languages.Language(f.Path); ok {
				weights[lang] += w
				counts[lang]++
			}

			for _, rule := range a.frameworks {
				if !rule.Match(f.Path) {
					continue
				}
				key := rule.Category + "/" + rule.Tag
				s, ok := evidence[key]
				if !ok {
					s = &models.FrameworkScore{Tag: rule.Tag, Category: rule.Category}
					evidence[key] = s
				}
				s.Files++
				s.Volume += w
			}
		}
	}
	profile.CommitsAnalyzed = len(commits)
	profile.Languages = languageShares(weights, counts)
	profile.FrameworkScores, profile.Frameworks = selectFrameworks(evidence)
	return profile
}

// languageShares normalizes weights. When every mapped change is empty
// (all weights zero) shares fall back to file counts.
func languageShares(weights map[string]int64, counts map[string]int) map[string]models.LanguageScore {
	out := make(map[string]models.LanguageScore, len(weights))
	var total int64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		var files int
		for _, n := range counts {
			files += n
		}
		for lang, n := range counts {
			out[lang] = models.LanguageScore{Share: float64(n) / float64(files)}
		}
		return out
	}
	for lang, w := range weights {
		out[lang] = models.LanguageScore{Weight: w, Share: float64(w) / float64(total)}
	}
	return out
}

// selectFrameworks keeps, per category, the tag touched by the most file
// changes, then the largest change volume. Exact ties keep every tied tag.
func selectFrameworks(evidence map[string]*models.FrameworkScore) ([]models.FrameworkScore, []string) {
	scores := make([]models.FrameworkScore, 0, len(evidence))
	for _, s := range evidence {
		scores = append(scores, *s)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Category != scores[j].Category {
			return scores[i].Category < scores[j].Category
		}
		return scores[i].Tag < scores[j].Tag
	})

	best := map[string]models.FrameworkScore{}
	for _, s := range scores {
		b, ok := best[s.Category]
		if !ok || s.Files > b.Files || (s.Files == b.Files && s.Volume > b.Volume) {
			best[s.Category] = s
		}
	}

	winners := []string{}
	seen := map[string]bool{}
	for _, s := range scores {
		b := best[s.Category]
		if s.Files == b.Files && s.Volume == b.Volume && !seen[s.Tag] {
			seen[s.Tag] = true
			winners = append(winners, s.Tag)
		}
	}
	sort.Strings(winners)
	return scores, winners
}
