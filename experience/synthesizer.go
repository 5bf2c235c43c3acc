// Package experience condenses a timeline of activity into work-experience
// periods: what was worked on (dominant languages and change patterns) and
// how intensely, with similar adjacent periods merged.
package experience

import (
	"math"
	"sort"
	"time"

	"githubactivity/models"
	"githubactivity/techstack"
)

const (
	// DefaultMergeThreshold is the Jaccard similarity of dominant language
	// sets at or above which adjacent periods merge.
	DefaultMergeThreshold = 0.6
	// DefaultDominantShare is the minimum language share to count as dominant.
	DefaultDominantShare = 0.2

	maxDominantPatterns = 2
)

// Synthesizer builds WorkExperienceProfiles. It holds no per-request state.
type Synthesizer struct {
	analyzer       *techstack.Analyzer
	mergeThreshold float64
	dominantShare  float64
}

type Option func(*Synthesizer)

func WithMergeThreshold(t float64) Option {
	return func(s *Synthesizer) { s.mergeThreshold = t }
}

func WithDominantShare(share float64) Option {
	return func(s *Synthesizer) { s.dominantShare = share }
}

func New(analyzer *techstack.Analyzer, opts ...Option) *Synthesizer {
	if analyzer == nil {
		analyzer = techstack.New()
	}
	s := &Synthesizer{
		analyzer:       analyzer,
		mergeThreshold: DefaultMergeThreshold,
		dominantShare:  DefaultDominantShare,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// summary is one period, or a run of merged periods, under construction.
type summary struct {
	start, end time.Time
	commits    []models.Commit
	events     int
	languages  []string
	patterns   []string
	intensity  float64
	members    int
}

// Synthesize describes periods, which must be non-overlapping. The result is
// ordered by start time.
func (s *Synthesizer) Synthesize(subject string, periods []PeriodActivity) models.WorkExperienceProfile {
	profile := models.WorkExperienceProfile{
		Subject: subject,
		Periods: []models.ExperiencePeriod{},
	}
	if len(periods) == 0 {
		return profile
	}

	ordered := append([]PeriodActivity(nil), periods...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start.Before(ordered[j].Start) })

	maxActivity := 0
	for _, p := range ordered {
		maxActivity = max(maxActivity, activity(p))
	}

	var merged []*summary
	for _, p := range ordered {
		cur := s.describe(subject, p.Start, p.End, p.Commits)
		cur.events = len(p.Events)
		cur.intensity = intensity(activity(p), maxActivity)
		cur.members = 1

		if n := len(merged); n > 0 && jaccard(merged[n-1].languages, cur.languages) >= s.mergeThreshold {
			merged[n-1] = s.merge(subject, merged[n-1], cur)
			continue
		}
		merged = append(merged, cur)
	}

	for _, m := range merged {
		profile.Periods = append(profile.Periods, models.ExperiencePeriod{
			Start:             m.start,
			End:               m.end,
			DominantLanguages: m.languages,
			DominantPatterns:  m.patterns,
			IntensityScore:    m.intensity,
			Commits:           len(m.commits),
			Events:            m.events,
		})
	}
	profile.Window = models.Window{Since: ordered[0].Start, Until: ordered[len(ordered)-1].End}
	return profile
}

func (s *Synthesizer) describe(subject string, start, end time.Time, commits []models.Commit) *summary {
	tp := s.analyzer.Analyze(subject, commits)
	return &summary{
		start:     start,
		end:       end,
		commits:   commits,
		languages: s.dominantLanguages(tp.Languages),
		patterns:  dominantPatterns(tp.ChangePatterns),
	}
}

// merge folds b into a. Dominant sets are recomputed over the combined
// commits; intensity is the mean of the members.
func (s *Synthesizer) merge(subject string, a, b *summary) *summary {
	commits := append(append([]models.Commit(nil), a.commits...), b.commits...)
	out := s.describe(subject, a.start, b.end, commits)
	out.events = a.events + b.events
	out.members = a.members + b.members
	out.intensity = (a.intensity*float64(a.members) + b.intensity*float64(b.members)) / float64(out.members)
	return out
}

func (s *Synthesizer) dominantLanguages(langs map[string]models.LanguageScore) []string {
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := langs[names[i]], langs[names[j]]
		if a.Share != b.Share {
			return a.Share > b.Share
		}
		return names[i] < names[j]
	})

	out := []string{}
	for i, name := range names {
		if i == 0 || langs[name].Share >= s.dominantShare {
			out = append(out, name)
		}
	}
	return out
}

func dominantPatterns(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		if name != techstack.PatternOther && n > 0 {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > maxDominantPatterns {
		names = names[:maxDominantPatterns]
	}
	if len(names) == 0 && counts[techstack.PatternOther] > 0 {
		return []string{techstack.PatternOther}
	}
	return names
}

// activity counts commits plus non-push events; push events duplicate the
// commits they carry.
func activity(p PeriodActivity) int {
	n := len(p.Commits)
	for _, e := range p.Events {
		if e.Type != "PushEvent" {
			n++
		}
	}
	return n
}

// intensity is log-scaled against the busiest period, in [0, 1].
func intensity(n, maxN int) float64 {
	if maxN <= 0 || n <= 0 {
		return 0
	}
	return math.Log1p(float64(n)) / math.Log1p(float64(maxN))
}

// jaccard similarity of two sets; two empty sets are identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	inter := 0
	union := len(set)
	for _, y := range b {
		if set[y] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
