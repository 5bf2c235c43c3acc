package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"githubactivity/logger"
	"githubactivity/models"
)

const upsertRepositoryQuery = `
	INSERT INTO repositories (
		name, owner, url, created_at, updated_at,
		description, language, forks_count, stars_count,
		open_issues_count, watchers_count
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (owner, name) DO UPDATE SET
		url = CASE WHEN EXCLUDED.url <> '' THEN EXCLUDED.url ELSE repositories.url END,
		updated_at = GREATEST(repositories.updated_at, EXCLUDED.updated_at),
		description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE repositories.description END,
		language = CASE WHEN EXCLUDED.language <> '' THEN EXCLUDED.language ELSE repositories.language END,
		forks_count = EXCLUDED.forks_count,
		stars_count = EXCLUDED.stars_count,
		open_issues_count = EXCLUDED.open_issues_count,
		watchers_count = EXCLUDED.watchers_count
	RETURNING id
`

// StoreRepository upserts a repository by owner and name and returns its id.
func (db *DB) StoreRepository(ctx context.Context, repo models.Repository) (int, error) {
	if repo.Name == "" || repo.Owner == "" {
		return 0, fmt.Errorf("%w: repository name and owner cannot be empty", ErrInvalidInput)
	}

	stmt, err := db.getStmt(ctx, upsertRepositoryQuery)
	if err != nil {
		return 0, err
	}

	var id int
	if err := stmt.GetContext(ctx, &id,
		repo.Name, repo.Owner, repo.URL, repo.CreatedAt, repo.UpdatedAt,
		repo.Description, repo.Language, repo.ForksCount, repo.StarsCount,
		repo.OpenIssuesCount, repo.WatchersCount,
	); err != nil {
		return 0, fmt.Errorf("failed to store repository %s/%s: %w", repo.Owner, repo.Name, err)
	}

	logger.Named("archive").Debug("Repository archived",
		zap.String("owner", repo.Owner),
		zap.String("name", repo.Name),
		zap.Int("id", id))
	return id, nil
}

// GetByName retrieves an archived repository by owner and name.
func (db *DB) GetByName(ctx context.Context, owner, name string) (*models.Repository, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: repository name and owner cannot be empty", ErrInvalidInput)
	}

	var repo models.Repository
	query := `
		SELECT id, name, owner, url, created_at, updated_at,
			description, language, forks_count, stars_count,
			open_issues_count, watchers_count
		FROM repositories
		WHERE owner = $1 AND name = $2
	`

	if err := db.conn.GetContext(ctx, &repo, query, owner, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, name)
		}
		return nil, fmt.Errorf("failed to get repository %s/%s: %w", owner, name, err)
	}
	repo.FullName = repo.Owner + "/" + repo.Name
	return &repo, nil
}

// GetRepositoryStats returns statistics about the archived commits of a
// repository.
func (db *DB) GetRepositoryStats(ctx context.Context, owner, name string) (*RepositoryStats, error) {
	if owner == "" || name == "" {
		return nil, fmt.Errorf("%w: repository name and owner cannot be empty", ErrInvalidInput)
	}

	stats := &RepositoryStats{}
	query := `
		SELECT
			r.owner,
			r.name,
			COUNT(*) AS total_commits,
			COUNT(DISTINCT c.author) AS unique_authors,
			COALESCE(SUM(c.additions), 0) AS additions,
			COALESCE(SUM(c.deletions), 0) AS deletions,
			MIN(c.date) AS first_commit_date,
			MAX(c.date) AS last_commit_date
		FROM commits c
		JOIN repositories r ON c.repository_id = r.id
		WHERE r.owner = $1 AND r.name = $2
		GROUP BY r.owner, r.name
	`

	if err := db.conn.GetContext(ctx, stats, query, owner, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNoCommitsFound, owner, name)
		}
		return nil, fmt.Errorf("failed to get repository statistics: %w", err)
	}

	return stats, nil
}
