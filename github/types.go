package github

import (
	"strings"
	"time"

	"githubactivity/models"
)

// EventResponse is one item of an events listing.
type EventResponse struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Actor struct {
		Login string `json:"login"`
	} `json:"actor"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToModel converts the wire event, keeping only the payload fields that
// matter for its type.
func (e EventResponse) ToModel() models.Event {
	return models.Event{
		ID:        e.ID,
		Type:      e.Type,
		Actor:     e.Actor.Login,
		Repo:      e.Repo.Name,
		CreatedAt: e.CreatedAt.UTC(),
		Payload:   extractPayload(e.Type, e.Payload),
	}
}

type RepoResponse struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	Description     string    `json:"description"`
	HTMLURL         string    `json:"html_url"`
	Language        string    `json:"language"`
	Fork            bool      `json:"fork"`
	Archived        bool      `json:"archived"`
	ForksCount      int       `json:"forks_count"`
	StargazersCount int       `json:"stargazers_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	WatchersCount   int       `json:"watchers_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	PushedAt        time.Time `json:"pushed_at"`
}

func (r RepoResponse) ToModel() models.Repository {
	owner := r.Owner.Login
	if owner == "" {
		owner, _, _ = strings.Cut(r.FullName, "/")
	}
	return models.Repository{
		Name:            r.Name,
		Owner:           owner,
		FullName:        r.FullName,
		Description:     r.Description,
		URL:             r.HTMLURL,
		Language:        r.Language,
		Fork:            r.Fork,
		Archived:        r.Archived,
		ForksCount:      r.ForksCount,
		StarsCount:      r.StargazersCount,
		OpenIssuesCount: r.OpenIssuesCount,
		WatchersCount:   r.WatchersCount,
		PushedAt:        r.PushedAt.UTC(),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type CommitResponse struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
	HTMLURL string `json:"html_url"`
	Files   []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int64  `json:"additions"`
		Deletions int64  `json:"deletions"`
	} `json:"files"`
}

// ToModel converts the wire commit; repo is the owning repository's full
// name, which the commit payload does not carry.
func (c CommitResponse) ToModel(repo string) models.Commit {
	author := c.Commit.Author.Name
	if c.Author != nil && c.Author.Login != "" {
		author = c.Author.Login
	}
	out := models.Commit{
		SHA:         c.SHA,
		Author:      author,
		AuthorEmail: c.Commit.Author.Email,
		Repo:        repo,
		AuthoredAt:  c.Commit.Author.Date.UTC(),
		Message:     c.Commit.Message,
		URL:         c.HTMLURL,
	}
	for _, f := range c.Files {
		out.Files = append(out.Files, models.FileChange{
			Path:      f.Filename,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Status:    f.Status,
		})
	}
	return out
}

// SearchIssue is one item of /search/issues. Pull requests carry a
// non-nil PullRequest.
type SearchIssue struct {
	Number        int        `json:"number"`
	Title         string     `json:"title"`
	State         string     `json:"state"`
	HTMLURL       string     `json:"html_url"`
	RepositoryURL string     `json:"repository_url"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ClosedAt      *time.Time `json:"closed_at"`
	Labels        []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct {
		MergedAt *time.Time `json:"merged_at"`
	} `json:"pull_request"`
}

// IsPullRequest reports whether the search hit is a pull request.
func (s SearchIssue) IsPullRequest() bool {
	return s.PullRequest != nil
}

// Repo derives the owner/name of the repository from its API URL.
func (s SearchIssue) Repo() string {
	const marker = "/repos/"
	if i := strings.LastIndex(s.RepositoryURL, marker); i >= 0 {
		return s.RepositoryURL[i+len(marker):]
	}
	return ""
}

func (s SearchIssue) ToIssue() models.Issue {
	issue := models.Issue{
		Number:    s.Number,
		Repo:      s.Repo(),
		Title:     s.Title,
		State:     s.State,
		CreatedAt: s.CreatedAt.UTC(),
		UpdatedAt: s.UpdatedAt.UTC(),
		URL:       s.HTMLURL,
	}
	if s.ClosedAt != nil {
		closed := s.ClosedAt.UTC()
		issue.ClosedAt = &closed
	}
	for _, l := range s.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	return issue
}

func (s SearchIssue) ToPullRequest() models.PullRequest {
	pr := models.PullRequest{Issue: s.ToIssue()}
	if s.PullRequest != nil && s.PullRequest.MergedAt != nil {
		pr.Merged = true
	}
	return pr
}
