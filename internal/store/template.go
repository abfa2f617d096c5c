package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Karthik-beta/Pivotr-Mailer-sub002/internal/models"
)

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template
func (r *TemplateRepository) Create(t *models.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO templates (id, name, subject, html, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subject, t.HTML, t.Text, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetByID returns a template by ID, or nil when absent
func (r *TemplateRepository) GetByID(id string) (*models.Template, error) {
	t := &models.Template{}
	err := r.db.QueryRow(`
		SELECT id, name, subject, html, text, created_at, updated_at
		FROM templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Text, &t.CreatedAt, &t.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List returns templates ordered by most recently updated
func (r *TemplateRepository) List(limit, offset int) ([]models.Template, error) {
	query := `
		SELECT id, name, subject, html, text, created_at, updated_at
		FROM templates ORDER BY updated_at DESC`
	args := []any{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	if offset > 0 {
		query += " OFFSET ?"
		args = append(args, offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Subject, &t.HTML, &t.Text, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// Update replaces a template's content
func (r *TemplateRepository) Update(t *models.Template) error {
	t.UpdatedAt = time.Now()

	res, err := r.db.Exec(`
		UPDATE templates SET name = ?, subject = ?, html = ?, text = ?, updated_at = ?
		WHERE id = ?`,
		t.Name, t.Subject, t.HTML, t.Text, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("template not found: %s", t.ID)
	}
	return nil
}

// Delete deletes a template
func (r *TemplateRepository) Delete(id string) error {
	_, err := r.db.Exec("DELETE FROM templates WHERE id = ?", id)
	return err
}
