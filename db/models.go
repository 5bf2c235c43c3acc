package db

import (
	"time"
)

// RepositoryStats summarizes the archived commits of one repository.
type RepositoryStats struct {
	Owner           string    `db:"owner" json:"owner"`
	Name            string    `db:"name" json:"name"`
	TotalCommits    int       `db:"total_commits" json:"total_commits"`
	UniqueAuthors   int       `db:"unique_authors" json:"unique_authors"`
	Additions       int64     `db:"additions" json:"additions"`
	Deletions       int64     `db:"deletions" json:"deletions"`
	FirstCommitDate time.Time `db:"first_commit_date" json:"first_commit_date"`
	LastCommitDate  time.Time `db:"last_commit_date" json:"last_commit_date"`
}
