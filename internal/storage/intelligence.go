package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"codemind/internal/analyzer"
)

// ConceptRow is a stored concept with its persistence timestamp
type ConceptRow struct {
	analyzer.Concept
	CreatedAt time.Time
}

// PatternRow is a stored pattern with its persistence timestamp
type PatternRow struct {
	analyzer.Pattern
	CreatedAt time.Time
}

// IntelligenceStore provides persistence for learned concepts and patterns
type IntelligenceStore struct {
	db *DB
}

// NewIntelligenceStore creates a store backed by db
func NewIntelligenceStore(db *DB) *IntelligenceStore {
	return &IntelligenceStore{db: db}
}

// InsertConcept stores a concept, assigning an ID when none is set.
// An existing row with the same ID is replaced.
func (s *IntelligenceStore) InsertConcept(c *analyzer.Concept) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO concepts (id, name, type, confidence, file_path, line_start, line_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Type, c.Confidence, c.FilePath, c.LineRange.Start, c.LineRange.End,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert concept %s: %w", c.Name, err)
	}
	return nil
}

// InsertPattern stores a pattern, assigning an ID when none is set
func (s *IntelligenceStore) InsertPattern(p *analyzer.Pattern) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO patterns (id, name, type, confidence, frequency, examples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Type, p.Confidence, p.Frequency, strings.Join(p.Examples, "\n"),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert pattern %s: %w", p.Name, err)
	}
	return nil
}

// GetConcepts returns all stored concepts
func (s *IntelligenceStore) GetConcepts() ([]ConceptRow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, type, confidence, file_path, line_start, line_end, created_at
		FROM concepts ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query concepts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var result []ConceptRow
	for rows.Next() {
		var row ConceptRow
		var createdAt string
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Confidence,
			&row.FilePath, &row.LineRange.Start, &row.LineRange.End, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan concept: %w", err)
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetPatterns returns stored patterns, optionally filtered by type
func (s *IntelligenceStore) GetPatterns(typeFilter string) ([]PatternRow, error) {
	query := `
		SELECT id, name, type, confidence, frequency, examples, created_at
		FROM patterns
	`
	var args []interface{}
	if typeFilter != "" {
		query += " WHERE type = ?"
		args = append(args, typeFilter)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var result []PatternRow
	for rows.Next() {
		var row PatternRow
		var createdAt string
		var examples sql.NullString
		if err := rows.Scan(&row.ID, &row.Name, &row.Type, &row.Confidence,
			&row.Frequency, &examples, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		if examples.Valid && examples.String != "" {
			row.Examples = strings.Split(examples.String, "\n")
		}
		row.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, row)
	}
	return result, rows.Err()
}

// DeleteConceptsByFile removes all concepts extracted from the given file.
// Called when the file disappears from the project tree.
func (s *IntelligenceStore) DeleteConceptsByFile(filePath string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM concepts WHERE file_path = ?", filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to delete concepts for %s: %w", filePath, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // Driver without RowsAffected support; delete still succeeded
	}
	return n, nil
}

// Counts returns the number of stored concepts and patterns
func (s *IntelligenceStore) Counts() (concepts int, patterns int, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM concepts").Scan(&concepts); err != nil {
		return 0, 0, fmt.Errorf("failed to count concepts: %w", err)
	}
	if err = s.db.QueryRow("SELECT COUNT(*) FROM patterns").Scan(&patterns); err != nil {
		return 0, 0, fmt.Errorf("failed to count patterns: %w", err)
	}
	return concepts, patterns, nil
}

// Timestamps returns the created_at times of all stored intelligence.
// Used by staleness detection to find the most recent learn.
func (s *IntelligenceStore) Timestamps() ([]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT created_at FROM concepts
		UNION ALL
		SELECT created_at FROM patterns
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Best effort cleanup

	var result []time.Time
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			result = append(result, t)
		}
	}
	return result, rows.Err()
}
