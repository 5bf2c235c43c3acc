// Package service exposes the query and synthesis operations behind the
// tools. Every operation validates its arguments, runs one aggregation
// pipeline and returns either a result or a *ToolError.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"githubactivity/activity"
	"githubactivity/experience"
	"githubactivity/github"
	"githubactivity/logger"
	"githubactivity/metrics"
	"githubactivity/models"
	"githubactivity/techstack"
)

// Tool defaults.
const (
	DefaultEventLimit     = 30
	DefaultCommitLimit    = 50
	DefaultActivityDays   = 7
	DefaultCommitDays     = 30
	DefaultTechStackDays  = 90
	DefaultExperienceDays = 365

	maxLimit = 1000
	maxDays  = 3650
)

// KindInvalidArgument is the ToolError kind for rejected input.
const KindInvalidArgument = "invalid_argument"

// ErrInvalidArgument is returned for malformed tool arguments.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)
	repoPattern     = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

// Aggregator abstracts the activity aggregator (for testability)
type Aggregator interface {
	Aggregate(ctx context.Context, subject string, w models.Window, kinds activity.Kinds) (*models.ActivitySummary, error)
	UserEvents(ctx context.Context, username string, limit int) (*models.EventList, error)
	RepositoryEvents(ctx context.Context, owner, repo string, limit int) (*models.EventList, error)
	UserCommits(ctx context.Context, username string, since time.Time, limit int) (*models.CommitList, error)
	Repositories(ctx context.Context, username string, since time.Time) ([]models.Repository, []models.Warning, error)
}

// Archive abstracts the optional commit archive (for testability)
type Archive interface {
	StoreRepository(ctx context.Context, repo models.Repository) (int, error)
	BatchInsert(ctx context.Context, repoID int, commits []models.Commit) error
}

// ToolError is the single structured error an operation returns.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	err     error
}

func (e *ToolError) Error() string { return e.Message }

func (e *ToolError) Unwrap() error { return e.err }

// Service represents the main application service
type Service struct {
	agg      Aggregator
	analyzer *techstack.Analyzer
	synth    *experience.Synthesizer
	archive  Archive
	metrics  *metrics.Manager
	now      func() time.Time
}

type Option func(*Service)

// WithArchive enables archiving of commits returned by UserCommits.
func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new service instance
func NewService(agg Aggregator, analyzer *techstack.Analyzer, synth *experience.Synthesizer, opts ...Option) *Service {
	if analyzer == nil {
		analyzer = techstack.New()
	}
	if synth == nil {
		synth = experience.New(analyzer)
	}
	s := &Service{
		agg:      agg,
		analyzer: analyzer,
		synth:    synth,
		metrics:  metrics.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserEvents returns the most recent public events of a user.
func (s *Service) UserEvents(ctx context.Context, username string, limit int) (*models.EventList, error) {
	return invoke(ctx, s, "get_user_events", "error getting user events", func(ctx context.Context) (*models.EventList, error) {
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		if err := validateRange("limit", limit, maxLimit); err != nil {
			return nil, err
		}
		return s.agg.UserEvents(ctx, username, limit)
	})
}

// RepositoryEvents returns the most recent events of a repository.
func (s *Service) RepositoryEvents(ctx context.Context, owner, repo string, limit int) (*models.EventList, error) {
	return invoke(ctx, s, "get_repository_events", "error getting repository events", func(ctx context.Context) (*models.EventList, error) {
		if err := validateUsername(owner); err != nil {
			return nil, err
		}
		if !repoPattern.MatchString(repo) || repo == "." || repo == ".." {
			return nil, fmt.Errorf("%w: invalid repository name %q", ErrInvalidArgument, repo)
		}
		if err := validateRange("limit", limit, maxLimit); err != nil {
			return nil, err
		}
		return s.agg.RepositoryEvents(ctx, owner, repo, limit)
	})
}

// UserActivity aggregates every activity kind over the last days.
func (s *Service) UserActivity(ctx context.Context, username string, days int) (*models.ActivitySummary, error) {
	return invoke(ctx, s, "get_user_activity", "error getting user activity", func(ctx context.Context) (*models.ActivitySummary, error) {
		w, err := s.window(username, days)
		if err != nil {
			return nil, err
		}
		return s.agg.Aggregate(ctx, username, w, activity.Kinds{
			Events:       true,
			Commits:      true,
			Issues:       true,
			PullRequests: true,
		})
	})
}

// UserCommits lists commits authored by a user across their repositories.
// since accepts RFC3339 or YYYY-MM-DD; empty means the last 30 days.
func (s *Service) UserCommits(ctx context.Context, username, since string, limit int) (*models.CommitList, error) {
	return invoke(ctx, s, "get_user_commits", "error getting user commits", func(ctx context.Context) (*models.CommitList, error) {
		if err := validateUsername(username); err != nil {
			return nil, err
		}
		if err := validateRange("limit", limit, maxLimit); err != nil {
			return nil, err
		}
		from, err := s.parseSince(since)
		if err != nil {
			return nil, err
		}

		list, err := s.agg.UserCommits(ctx, username, from, limit)
		if err != nil {
			return nil, err
		}
		if s.archive != nil && len(list.Commits) > 0 {
			s.archiveCommits(ctx, username, from, list.Commits)
		}
		return list, nil
	})
}

// TechStack profiles the languages, frameworks and change patterns of the
// commits a user authored over the last days.
func (s *Service) TechStack(ctx context.Context, username string, days int) (*models.TechStackProfile, error) {
	return invoke(ctx, s, "analyze_tech_stack", "error analyzing tech stack", func(ctx context.Context) (*models.TechStackProfile, error) {
		w, err := s.window(username, days)
		if err != nil {
			return nil, err
		}
		summary, err := s.agg.Aggregate(ctx, username, w, activity.Kinds{Commits: true, CommitFiles: true})
		if err != nil {
			return nil, err
		}
		profile := s.analyzer.Analyze(username, summary.Commits)
		profile.Window = w
		profile.Warnings = summary.Warnings
		profile.Partial = summary.Partial
		return &profile, nil
	})
}

// WorkExperience synthesizes work-experience periods over the last days.
// An empty granularity is chosen from the range.
func (s *Service) WorkExperience(ctx context.Context, username string, days int, granularity string) (*models.WorkExperienceProfile, error) {
	return invoke(ctx, s, "generate_work_experience", "error generating work experience", func(ctx context.Context) (*models.WorkExperienceProfile, error) {
		w, err := s.window(username, days)
		if err != nil {
			return nil, err
		}
		g, err := experience.ParseGranularity(granularity)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
		if g == "" {
			g = experience.GranularityFor(days)
		}
		periods, err := experience.Partition(w, g)
		if err != nil {
			return nil, err
		}

		summary, err := s.agg.Aggregate(ctx, username, w, activity.Kinds{Events: true, Commits: true, CommitFiles: true})
		if err != nil {
			return nil, err
		}
		experience.Distribute(periods, summary.Commits, summary.Events)

		profile := s.synth.Synthesize(username, periods)
		profile.Window = w
		profile.Warnings = summary.Warnings
		profile.Partial = summary.Partial
		return &profile, nil
	})
}

func (s *Service) window(username string, days int) (models.Window, error) {
	if err := validateUsername(username); err != nil {
		return models.Window{}, err
	}
	if err := validateRange("days", days, maxDays); err != nil {
		return models.Window{}, err
	}
	return models.LastDays(s.now(), days), nil
}

func (s *Service) parseSince(since string) (time.Time, error) {
	since = strings.TrimSpace(since)
	if since == "" {
		return s.now().UTC().AddDate(0, 0, -DefaultCommitDays), nil
	}
	if t, err := time.Parse(time.RFC3339, since); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, since); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: since %q is neither RFC3339 nor YYYY-MM-DD", ErrInvalidArgument, since)
}

// archiveCommits stores the repositories and commits of a listing. The
// archive is best effort: failures are logged and never fail the request.
func (s *Service) archiveCommits(ctx context.Context, username string, since time.Time, commits []models.Commit) {
	repos, _, err := s.agg.Repositories(ctx, username, since)
	if err != nil {
		logger.Warn("Failed to list repositories for archive",
			zap.String("username", username),
			zap.Error(err))
	}
	known := make(map[string]models.Repository, len(repos))
	for _, r := range repos {
		known[r.FullName] = r
	}

	byRepo := map[string][]models.Commit{}
	var order []string
	for _, c := range commits {
		if _, ok := byRepo[c.Repo]; !ok {
			order = append(order, c.Repo)
		}
		byRepo[c.Repo] = append(byRepo[c.Repo], c)
	}

	for _, fullName := range order {
		repo, ok := known[fullName]
		if !ok {
			repo = repositoryFromName(fullName)
		}
		id, err := s.archive.StoreRepository(ctx, repo)
		if err != nil {
			logger.Warn("Failed to archive repository",
				zap.String("repository", fullName),
				zap.Error(err))
			continue
		}
		if err := s.archive.BatchInsert(ctx, id, byRepo[fullName]); err != nil {
			logger.Warn("Failed to archive commits",
				zap.String("repository", fullName),
				zap.Int("commit_count", len(byRepo[fullName])),
				zap.Error(err))
		}
	}
}

func repositoryFromName(fullName string) models.Repository {
	owner, name, _ := strings.Cut(fullName, "/")
	return models.Repository{
		Owner:    owner,
		Name:     name,
		FullName: fullName,
		URL:      "https://github.com/" + fullName,
	}
}

// invoke runs one tool operation with a request id, logging and metrics,
// and converts any failure into a *ToolError.
func invoke[T any](ctx context.Context, s *Service, tool, action string, fn func(context.Context) (T, error)) (T, error) {
	requestID := uuid.NewString()
	log := logger.WithContext(zap.String("request_id", requestID), zap.String("tool", tool))
	start := time.Now()

	log.Debug("Tool call started")
	res, err := fn(ctx)
	took := time.Since(start)
	if err != nil {
		terr := toToolError(action, err)
		s.metrics.ToolCall(tool, terr.Kind, took)
		log.Warn("Tool call failed",
			zap.String("kind", terr.Kind),
			zap.Duration("took", took),
			zap.Error(err))
		var zero T
		return zero, terr
	}

	s.metrics.ToolCall(tool, "ok", took)
	log.Info("Tool call completed", zap.Duration("took", took))
	return res, nil
}

func toToolError(action string, err error) *ToolError {
	kind := github.KindOf(err)
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, models.ErrInvalidWindow) || errors.Is(err, experience.ErrInvalidGranularity) {
		kind = KindInvalidArgument
	}
	return &ToolError{
		Kind:    kind,
		Message: fmt.Sprintf("%s: %v", action, err),
		err:     err,
	}
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: invalid username %q", ErrInvalidArgument, username)
	}
	return nil
}

func validateRange(name string, v, maxV int) error {
	if v < 1 || v > maxV {
		return fmt.Errorf("%w: %s must be between 1 and %d, got %d", ErrInvalidArgument, name, maxV, v)
	}
	return nil
}
