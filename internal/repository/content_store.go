// internal/repository/content_store.go
package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/msgblast-backend/internal/model"
)

// ContentStore reads the externally-managed content sources (templates and
// AI-generated messages). Their CRUD lives outside this service; the resolver
// only ever looks them up.
type ContentStore struct {
	DB *sql.DB
}

func (s *ContentStore) Template(ctx context.Context, id string) (*model.Content, error) {
	var c model.Content
	err := s.DB.QueryRowContext(ctx,
		`SELECT subject, body, preheader FROM templates WHERE id=$1`, id).
		Scan(&c.Subject, &c.Body, &c.Preheader)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *ContentStore) GeneratedMessage(ctx context.Context, id string) (*model.Content, error) {
	var c model.Content
	err := s.DB.QueryRowContext(ctx,
		`SELECT subject, body, preheader FROM generated_messages WHERE id=$1`, id).
		Scan(&c.Subject, &c.Body, &c.Preheader)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
