package techstack

import (
	"testing"

	"githubactivity/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func files(fcs ...models.FileChange) []models.FileChange { return fcs }

func fc(path string, add, del int64) models.FileChange {
	return models.FileChange{Path: path, Additions: add, Deletions: del}
}

func TestAnalyzeLineWeightedScore(t *testing.T) {
	commits := []models.Commit{{
		SHA:     "a1",
		Message: "feat: add endpoint",
		Files:   files(fc("app.py", 50, 5), fc("app.py", 0, 0)),
	}}

	profile := New().Analyze("octocat", commits)

	require.Contains(t, profile.Languages, "python")
	assert.Equal(t, int64(55), profile.Languages["python"].Weight)
	assert.InDelta(t, 1.0, profile.Languages["python"].Share, 1e-9)
	assert.Equal(t, 2, profile.FilesAnalyzed)
	assert.Equal(t, 1, profile.CommitsAnalyzed)
}

func TestAnalyzeEmpty(t *testing.T) {
	profile := New().Analyze("octocat", nil)

	assert.Equal(t, EmptyProfile("octocat"), profile)
	assert.NotNil(t, profile.Languages)
	assert.NotNil(t, profile.Frameworks)
	assert.NotNil(t, profile.ChangePatterns)
}

func TestAnalyzeSharesSumToOne(t *testing.T) {
	commits := []models.Commit{
		{Message: "fix crash", Files: files(fc("main.go", 120, 30), fc("README.md", 10, 0), fc("web/App.tsx", 40, 2))},
		{Message: "Refactor handlers", Files: files(fc("server/handler.go", 10, 10), fc("scripts/run.sh", 3, 1))},
		{Message: "wip", Files: files(fc("data.json", 500, 0))},
	}

	profile := New().Analyze("octocat", commits)

	var sum float64
	for _, score := range profile.Languages {
		assert.GreaterOrEqual(t, score.Weight, int64(0))
		sum += score.Share
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.NotContains(t, profile.Languages, "markdown", "unmapped extensions are dropped")
	assert.Equal(t, int64(170), profile.Languages["go"].Weight)
	assert.Equal(t, map[string]int{PatternFix: 1, PatternRefactor: 1, PatternOther: 1}, profile.ChangePatterns)
}

func TestAnalyzeZeroWeightFallsBackToFileCounts(t *testing.T) {
	commits := []models.Commit{{Message: "rename", Files: files(
		models.FileChange{Path: "a.go", Status: "renamed"},
		models.FileChange{Path: "b.go", Status: "renamed"},
		models.FileChange{Path: "c.py", Status: "renamed"},
	)}}

	profile := New().Analyze("octocat", commits)

	assert.InDelta(t, 2.0/3.0, profile.Languages["go"].Share, 1e-9)
	assert.InDelta(t, 1.0/3.0, profile.Languages["python"].Share, 1e-9)
	assert.Equal(t, int64(0), profile.Languages["go"].Weight)
}

func TestAnalyzeFrameworks(t *testing.T) {
	tests := []struct {
		name     string
		files    []models.FileChange
		expected []string
	}{
		{
			name:     "marker files",
			files:    files(fc("go.mod", 2, 1), fc("Dockerfile", 10, 0), fc(".github/workflows/ci.yml", 30, 0)),
			expected: []string{"docker", "github-actions", "go-modules"},
		},
		{
			name:     "most frequent tag in a category wins",
			files:    files(fc("go.mod", 1, 0), fc("svc/go.mod", 1, 0), fc("package.json", 100, 0)),
			expected: []string{"go-modules"},
		},
		{
			name:     "tie broken by volume",
			files:    files(fc("go.mod", 1, 0), fc("package.json", 100, 0)),
			expected: []string{"npm"},
		},
		{
			name:     "exact tie keeps all",
			files:    files(fc("go.mod", 5, 0), fc("package.json", 5, 0)),
			expected: []string{"go-modules", "npm"},
		},
		{
			name:     "unmapped extensions still feed rules",
			files:    files(fc("Chart.yaml", 3, 0), fc("k8s/deploy.yaml", 20, 0), fc("k8s/svc.yaml", 4, 0)),
			expected: []string{"kubernetes"},
		},
		{
			name:     "nothing matched",
			files:    files(fc("notes.txt", 1, 0)),
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := New().Analyze("octocat", []models.Commit{{Message: "x", Files: tt.files}})
			assert.Equal(t, tt.expected, profile.Frameworks)
		})
	}
}

func TestClassify(t *testing.T) {
	rules := DefaultPatternRules()
	tests := []struct {
		message  string
		expected string
	}{
		{"fix: handle nil pointer", PatternFix},
		{"feat(api)!: add v2 endpoints", PatternFeature},
		{"perf: speed up parser", PatternRefactor},
		{"docs: fix typo in README", PatternDocs},
		{"Fix flaky test and refactor helpers", PatternFix},
		{"Refactor and add tests", PatternFeature},
		{"Add unit tests\n\nfixes #12", PatternFeature},
		{"Update README", PatternDocs},
		{"chore: bump deps", PatternOther},
		{"chore: add coverage job", PatternFeature},
		{"Merge branch 'main'", PatternOther},
		{"", PatternOther},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.expected, rules.Classify(tt.message))
		})
	}
}

func TestInjectedTables(t *testing.T) {
	a := New(
		WithResolver(StaticTable{".foo": "foolang"}),
		WithFrameworkRules([]FrameworkRule{MarkerFile("bar", "build", "bar.lock")}),
		WithPatternRules(PatternRules{{Pattern: "chore", Prefixes: []string{"chore"}}}),
	)

	profile := a.Analyze("octocat", []models.Commit{{
		Message: "chore: tidy",
		Files:   files(fc("x.foo", 3, 1), fc("main.go", 10, 0), fc("bar.lock", 1, 1)),
	}})

	assert.Equal(t, map[string]models.LanguageScore{"foolang": {Weight: 4, Share: 1}}, profile.Languages)
	assert.Equal(t, []string{"bar"}, profile.Frameworks)
	assert.Equal(t, map[string]int{"chore": 1}, profile.ChangePatterns)
}

func TestStaticTable(t *testing.T) {
	table := DefaultTable()
	tests := []struct {
		path     string
		expected string
		ok       bool
	}{
		{"src/App.TSX", "typescript", true},
		{"build/Dockerfile", "dockerfile", true},
		{"Makefile", "makefile", true},
		{"docs/guide.md", "", false},
		{"LICENSE", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			lang, ok := table.Language(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, lang)
		})
	}
}

func TestEnryResolver(t *testing.T) {
	var r EnryResolver

	lang, ok := r.Language("app.py")
	assert.True(t, ok)
	assert.Equal(t, "python", lang)

	lang, ok = r.Language("cmd/main.go")
	assert.True(t, ok)
	assert.Equal(t, "go", lang)

	_, ok = r.Language("node_modules/left-pad/index.js")
	assert.False(t, ok, "vendored paths are ignored")

	_, ok = r.Language("config.json")
	assert.False(t, ok, "data formats are ignored")
}
