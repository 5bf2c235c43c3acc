package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"githubactivity/logger"
	"githubactivity/models"
)

// A copy carrying file stats replaces one without; a bare listing never
// downgrades an enriched row.
const insertCommitQuery = `
	INSERT INTO commits (
		sha, repository_id, author, author_email, message, date, url,
		additions, deletions, files_changed
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (repository_id, sha) DO UPDATE SET
		additions = EXCLUDED.additions,
		deletions = EXCLUDED.deletions,
		files_changed = EXCLUDED.files_changed
	WHERE commits.files_changed < EXCLUDED.files_changed
`

// BatchInsert archives the commits of one repository in a single
// transaction.
func (db *DB) BatchInsert(ctx context.Context, repoID int, commits []models.Commit) error {
	if len(commits) == 0 {
		return nil
	}
	if repoID <= 0 {
		return fmt.Errorf("%w: repository id must be positive", ErrInvalidInput)
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, insertCommitQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare commit insert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range commits {
		var additions, deletions int64
		for _, f := range c.Files {
			additions += f.Additions
			deletions += f.Deletions
		}
		if _, err := stmt.ExecContext(ctx,
			c.SHA, repoID, c.Author, c.AuthorEmail, c.Message,
			c.AuthoredAt, c.URL, additions, deletions, len(c.Files),
		); err != nil {
			return fmt.Errorf("failed to insert commit %s: %w", c.SHA, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrTransactionFailed, err)
	}

	logger.Named("archive").Debug("Commits archived",
		zap.Int("repository_id", repoID),
		zap.Int("count", len(commits)))
	return nil
}
