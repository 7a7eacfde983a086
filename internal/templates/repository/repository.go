package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"conversa_backend/platform/apperr"
)

const templateNotFoundMessage = "template not found"

// Template is a stored, categorized message body with named placeholders.
type Template struct {
	ID        uuid.UUID
	Name      string
	Category  string
	Body      string
	Variables []string
	IsDefault bool
	CreatedAt string
	UpdatedAt string
}

// Repository is the persistence contract for templates.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Template, error)
	GetByName(ctx context.Context, name string) (Template, error)
	List(ctx context.Context) ([]Template, error)
	ListByCategory(ctx context.Context, category string) ([]Template, error)
	Create(ctx context.Context, tpl Template) (Template, error)
	Update(ctx context.Context, tpl Template) (Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repo implements Repository with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new templates repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

const templateColumns = "id, name, category, body, variables, is_default, created_at, updated_at"

func scanTemplate(row pgx.Row) (Template, error) {
	var tpl Template
	var createdAt, updatedAt time.Time

	err := row.Scan(&tpl.ID, &tpl.Name, &tpl.Category, &tpl.Body, &tpl.Variables, &tpl.IsDefault, &createdAt, &updatedAt)
	if err != nil {
		return Template{}, err
	}

	tpl.CreatedAt = createdAt.Format(time.RFC3339)
	tpl.UpdatedAt = updatedAt.Format(time.RFC3339)
	return tpl, nil
}

// GetByID retrieves a template by its ID.
func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (Template, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE id = $1`

	tpl, err := scanTemplate(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Template{}, fmt.Errorf("get template by id: %w", err)
	}
	return tpl, nil
}

// GetByName retrieves a template by its unique name.
func (r *Repo) GetByName(ctx context.Context, name string) (Template, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE name = $1`

	tpl, err := scanTemplate(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		return Template{}, fmt.Errorf("get template by name: %w", err)
	}
	return tpl, nil
}

// List retrieves all templates ordered by category, then name.
func (r *Repo) List(ctx context.Context) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates ORDER BY category ASC, name ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

// ListByCategory retrieves templates in one category ordered by name.
func (r *Repo) ListByCategory(ctx context.Context, category string) ([]Template, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE category = $1 ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("list templates by category: %w", err)
	}
	defer rows.Close()

	return collectTemplates(rows)
}

func collectTemplates(rows pgx.Rows) ([]Template, error) {
	templates := make([]Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// Create inserts a new template. A duplicate name conflicts.
func (r *Repo) Create(ctx context.Context, tpl Template) (Template, error) {
	query := `
		INSERT INTO message_templates (name, category, body, variables, is_default)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + templateColumns

	created, err := scanTemplate(r.pool.QueryRow(ctx, query, tpl.Name, tpl.Category, tpl.Body, tpl.Variables, tpl.IsDefault))
	if err != nil {
		if isUniqueViolation(err) {
			return Template{}, apperr.Conflict("a template with this name already exists")
		}
		return Template{}, fmt.Errorf("create template: %w", err)
	}
	return created, nil
}

// Update overwrites an existing template's fields.
func (r *Repo) Update(ctx context.Context, tpl Template) (Template, error) {
	query := `
		UPDATE message_templates
		SET name = $2, category = $3, body = $4, variables = $5, is_default = $6, updated_at = now()
		WHERE id = $1
		RETURNING ` + templateColumns

	updated, err := scanTemplate(r.pool.QueryRow(ctx, query, tpl.ID, tpl.Name, tpl.Category, tpl.Body, tpl.Variables, tpl.IsDefault))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Template{}, apperr.NotFound(templateNotFoundMessage)
		}
		if isUniqueViolation(err) {
			return Template{}, apperr.Conflict("a template with this name already exists")
		}
		return Template{}, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

// Delete removes a template by ID.
func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM message_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(templateNotFoundMessage)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
