package techstack

import (
	"path"
	"regexp"
	"slices"
	"strings"
)

// Framework categories used by the default rules.
const (
	CategoryBuild     = "build"
	CategoryCI        = "ci"
	CategoryContainer = "container"
	CategoryFrontend  = "frontend"
	CategoryBackend   = "backend"
	CategoryTesting   = "testing"
	CategoryInfra     = "infra"
)

// FrameworkRule tags a file change with an ecosystem or tool identifier.
// Within one Category only the best supported tag is reported.
type FrameworkRule struct {
	Tag      string
	Category string
	Match    func(filePath string) bool
}

// MarkerFile matches paths whose base name equals one of names.
func MarkerFile(tag, category string, names ...string) FrameworkRule {
	return FrameworkRule{Tag: tag, Category: category, Match: func(p string) bool {
		base := strings.ToLower(path.Base(p))
		for _, n := range names {
			if base == n {
				return true
			}
		}
		return false
	}}
}

// PathSuffix matches paths ending in one of suffixes.
func PathSuffix(tag, category string, suffixes ...string) FrameworkRule {
	return FrameworkRule{Tag: tag, Category: category, Match: func(p string) bool {
		p = strings.ToLower(p)
		for _, s := range suffixes {
			if strings.HasSuffix(p, s) {
				return true
			}
		}
		return false
	}}
}

// PathPattern matches paths against a regular expression.
func PathPattern(tag, category, expr string) FrameworkRule {
	re := regexp.MustCompile(expr)
	return FrameworkRule{Tag: tag, Category: category, Match: func(p string) bool {
		return re.MatchString(strings.ToLower(p))
	}}
}

// DefaultFrameworkRules is the built-in marker file and path rule set.
func DefaultFrameworkRules() []FrameworkRule {
	return []FrameworkRule{
		MarkerFile("go-modules", CategoryBuild, "go.mod", "go.sum"),
		MarkerFile("npm", CategoryBuild, "package.json", "package-lock.json"),
		MarkerFile("yarn", CategoryBuild, "yarn.lock"),
		MarkerFile("pnpm", CategoryBuild, "pnpm-lock.yaml"),
		MarkerFile("pip", CategoryBuild, "requirements.txt", "setup.py", "setup.cfg"),
		MarkerFile("poetry", CategoryBuild, "pyproject.toml", "poetry.lock"),
		MarkerFile("cargo", CategoryBuild, "cargo.toml", "cargo.lock"),
		MarkerFile("maven", CategoryBuild, "pom.xml"),
		MarkerFile("gradle", CategoryBuild, "build.gradle", "build.gradle.kts", "settings.gradle"),
		MarkerFile("bundler", CategoryBuild, "gemfile", "gemfile.lock"),
		MarkerFile("composer", CategoryBuild, "composer.json"),

		PathPattern("github-actions", CategoryCI, `(^|/)\.github/workflows/[^/]+\.ya?ml$`),
		MarkerFile("gitlab-ci", CategoryCI, ".gitlab-ci.yml"),
		PathPattern("circleci", CategoryCI, `(^|/)\.circleci/`),
		MarkerFile("jenkins", CategoryCI, "jenkinsfile"),

		MarkerFile("docker", CategoryContainer, "dockerfile", "docker-compose.yml", "docker-compose.yaml", ".dockerignore"),
		MarkerFile("helm", CategoryInfra, "chart.yaml"),
		PathSuffix("terraform", CategoryInfra, ".tf", ".tfvars"),
		PathPattern("kubernetes", CategoryInfra, `(^|/)(k8s|kubernetes|manifests)/[^/]+\.ya?ml$`),

		MarkerFile("nextjs", CategoryFrontend, "next.config.js", "next.config.mjs", "next.config.ts"),
		PathSuffix("react", CategoryFrontend, ".jsx", ".tsx"),
		PathSuffix("vue", CategoryFrontend, ".vue"),
		PathSuffix("svelte", CategoryFrontend, ".svelte"),
		MarkerFile("angular", CategoryFrontend, "angular.json"),

		MarkerFile("django", CategoryBackend, "manage.py", "wsgi.py", "asgi.py"),
		PathPattern("rails", CategoryBackend, `(^|/)config/routes\.rb$`),
		PathPattern("spring", CategoryBackend, `(^|/)application\.(properties|ya?ml)$`),

		PathSuffix("go-test", CategoryTesting, "_test.go"),
		PathPattern("pytest", CategoryTesting, `(^|/)(test_[^/]+|[^/]+_test|conftest)\.py$`),
		PathPattern("jest", CategoryTesting, `\.(test|spec)\.(js|jsx|ts|tsx)$`),
		PathPattern("rspec", CategoryTesting, `_spec\.rb$`),
	}
}

// Change pattern buckets.
const (
	PatternFix      = "fix"
	PatternFeature  = "feature"
	PatternRefactor = "refactor"
	PatternTest     = "test"
	PatternDocs     = "docs"
	PatternOther    = "other"
)

// PatternRule maps conventional-commit types and message keywords to a
// bucket.
type PatternRule struct {
	Pattern  string
	Prefixes []string
	Keywords []string
}

// PatternRules classifies commit messages. Order is the tie-break: when a
// message contains keywords of several rules, the earliest rule wins.
type PatternRules []PatternRule

// DefaultPatternRules lists buckets in priority order fix, feature,
// refactor, test, docs.
func DefaultPatternRules() PatternRules {
	return PatternRules{
		{
			Pattern:  PatternFix,
			Prefixes: []string{"fix", "bugfix", "hotfix"},
			Keywords: []string{"fix", "fixes", "fixed", "fixing", "bug", "bugs", "bugfix", "hotfix", "patch", "resolve", "resolves", "resolved"},
		},
		{
			Pattern:  PatternFeature,
			Prefixes: []string{"feat", "feature"},
			Keywords: []string{"add", "adds", "added", "adding", "implement", "implements", "implemented", "feature", "features", "introduce", "introduces", "support"},
		},
		{
			Pattern:  PatternRefactor,
			Prefixes: []string{"refactor", "perf", "style"},
			Keywords: []string{"refactor", "refactored", "refactoring", "cleanup", "restructure", "simplify", "simplified", "rename", "renamed", "reorganize"},
		},
		{
			Pattern:  PatternTest,
			Prefixes: []string{"test", "tests"},
			Keywords: []string{"test", "tests", "testing", "tested", "coverage", "spec", "specs"},
		},
		{
			Pattern:  PatternDocs,
			Prefixes: []string{"docs", "doc"},
			Keywords: []string{"doc", "docs", "documentation", "readme", "changelog", "comments"},
		},
	}
}

var (
	conventionalRE = regexp.MustCompile(`^([a-z]+)(\([^)]*\))?!?:`)
	wordRE         = regexp.MustCompile(`[a-z0-9]+`)
)

// Classify buckets a commit message by its first line. A conventional
// commit type decides first; otherwise keywords are checked in rule order.
// This is a heuristic and misclassifies free-form messages.
func (rules PatternRules) Classify(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	subject = strings.ToLower(strings.TrimSpace(subject))

	if m := conventionalRE.FindStringSubmatch(subject); m != nil {
		for _, r := range rules {
			if slices.Contains(r.Prefixes, m[1]) {
				return r.Pattern
			}
		}
		subject = subject[len(m[0]):]
	}

	words := wordRE.FindAllString(subject, -1)
	for _, r := range rules {
		for _, w := range words {
			if slices.Contains(r.Keywords, w) {
				return r.Pattern
			}
		}
	}
	return PatternOther
}
