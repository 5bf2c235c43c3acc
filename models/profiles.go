package models

import "time"

// LanguageScore is the line-weighted score of one language.
type LanguageScore struct {
	Weight int64   `json:"weight"`
	Share  float64 `json:"share"`
}

// FrameworkScore is the evidence collected for one inferred tool.
type FrameworkScore struct {
	Tag      string `json:"tag"`
	Category string `json:"category"`
	Files    int    `json:"files"`
	Volume   int64  `json:"volume"`
}

// TechStackProfile is derived solely from a set of commits.
type TechStackProfile struct {
	Subject         string                   `json:"subject"`
	Window          Window                   `json:"window"`
	Languages       map[string]LanguageScore `json:"languages"`
	Frameworks      []string                 `json:"frameworks"`
	FrameworkScores []FrameworkScore         `json:"framework_scores,omitempty"`
	ChangePatterns  map[string]int           `json:"change_pattern_distribution"`
	CommitsAnalyzed int                      `json:"commits_analyzed"`
	FilesAnalyzed   int                      `json:"files_analyzed"`
	Warnings        []Warning                `json:"warnings,omitempty"`
	Partial         bool                     `json:"partial,omitempty"`
}

// ExperiencePeriod is one reported stretch of the timeline.
type ExperiencePeriod struct {
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	DominantLanguages []string  `json:"dominant_languages"`
	DominantPatterns  []string  `json:"dominant_patterns"`
	IntensityScore    float64   `json:"intensity_score"`
	Commits           int       `json:"commits"`
	Events            int       `json:"events"`
}

// WorkExperienceProfile is a chronologically ordered sequence of periods.
type WorkExperienceProfile struct {
	Subject  string             `json:"subject"`
	Window   Window             `json:"window"`
	Periods  []ExperiencePeriod `json:"periods"`
	Warnings []Warning          `json:"warnings,omitempty"`
	Partial  bool               `json:"partial,omitempty"`
}
