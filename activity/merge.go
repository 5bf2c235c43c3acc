package activity

import (
	"sort"

	"githubactivity/models"
)

// mergeEvents drops events outside w and then de-duplicates them.
func mergeEvents(w models.Window, events []models.Event) []models.Event {
	in := make([]models.Event, 0, len(events))
	for _, e := range events {
		if w.Contains(e.CreatedAt) {
			in = append(in, e)
		}
	}
	return dedupeEvents(in)
}

// dedupeEvents de-duplicates by identity and sorts newest first. Ties are
// broken by repository and then identity so the result does not depend on
// fetch order.
func dedupeEvents(events []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]models.Event, 0, len(events))
	for _, e := range events {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Repo != b.Repo {
			return a.Repo < b.Repo
		}
		return a.Key() < b.Key()
	})
	return out
}

// mergeCommits de-duplicates by SHA, keeping the copy that carries file
// data, and sorts newest first.
func mergeCommits(w models.Window, commits []models.Commit) []models.Commit {
	index := make(map[string]int, len(commits))
	out := make([]models.Commit, 0, len(commits))
	for _, c := range commits {
		if !w.Contains(c.AuthoredAt) {
			continue
		}
		if i, dup := index[c.SHA]; dup {
			if len(out[i].Files) == 0 && len(c.Files) > 0 {
				out[i] = c
			}
			continue
		}
		index[c.SHA] = len(out)
		out = append(out, c)
	}
	sortCommits(out)
	return out
}

func sortCommits(commits []models.Commit) {
	sort.Slice(commits, func(i, j int) bool {
		a, b := commits[i], commits[j]
		if !a.AuthoredAt.Equal(b.AuthoredAt) {
			return a.AuthoredAt.After(b.AuthoredAt)
		}
		if a.Repo != b.Repo {
			return a.Repo < b.Repo
		}
		return a.SHA < b.SHA
	})
}

func mergeIssues(w models.Window, issues []models.Issue) []models.Issue {
	seen := make(map[string]struct{}, len(issues))
	out := make([]models.Issue, 0, len(issues))
	for _, is := range issues {
		if !w.Contains(is.UpdatedAt) {
			continue
		}
		if _, dup := seen[is.Key()]; dup {
			continue
		}
		seen[is.Key()] = struct{}{}
		out = append(out, is)
	}
	sort.Slice(out, func(i, j int) bool { return issueBefore(out[i], out[j]) })
	return out
}

func mergePullRequests(w models.Window, prs []models.PullRequest) []models.PullRequest {
	seen := make(map[string]struct{}, len(prs))
	out := make([]models.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if !w.Contains(pr.UpdatedAt) {
			continue
		}
		if _, dup := seen[pr.Key()]; dup {
			continue
		}
		seen[pr.Key()] = struct{}{}
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return issueBefore(out[i].Issue, out[j].Issue) })
	return out
}

func issueBefore(a, b models.Issue) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if a.Repo != b.Repo {
		return a.Repo < b.Repo
	}
	return a.Number < b.Number
}

// activeRepositories is the sorted set of repositories touched by any item.
func activeRepositories(s *models.ActivitySummary) []string {
	set := make(map[string]struct{})
	add := func(repo string) {
		if repo != "" {
			set[repo] = struct{}{}
		}
	}
	for _, e := range s.Events {
		add(e.Repo)
	}
	for _, c := range s.Commits {
		add(c.Repo)
	}
	for _, is := range s.Issues {
		add(is.Repo)
	}
	for _, pr := range s.PullRequests {
		add(pr.Repo)
	}
	out := make([]string, 0, len(set))
	for repo := range set {
		out = append(out, repo)
	}
	sort.Strings(out)
	return out
}
