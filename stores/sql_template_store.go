package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLTemplateStore persists permission templates in SQL (squealx)
type SQLTemplateStore struct {
	db *squealx.DB
}

func NewSQLTemplateStore(db *squealx.DB) *SQLTemplateStore {
	return &SQLTemplateStore{db: db}
}

func (s *SQLTemplateStore) CreateTemplate(ctx context.Context, t *permit.Template) error {
	grants, _ := json.Marshal(t.Grants)
	q := `INSERT INTO templates(id, name, description, grants_json, created_at) VALUES(:id, :name, :description, :grants_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": t.ID, "name": t.Name, "description": t.Description, "grants_json": string(grants), "created_at": time.Now()})
	return err
}

func (s *SQLTemplateStore) UpdateTemplate(ctx context.Context, t *permit.Template) error {
	grants, _ := json.Marshal(t.Grants)
	q := `UPDATE templates SET name=:name, description=:description, grants_json=:grants_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": t.ID, "name": t.Name, "description": t.Description, "grants_json": string(grants)})
	return err
}

func (s *SQLTemplateStore) DeleteTemplate(ctx context.Context, id string) error {
	q := `DELETE FROM templates WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLTemplateStore) GetTemplate(ctx context.Context, id string) (*permit.Template, error) {
	q := `SELECT id, name, description, grants_json, created_at FROM templates WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanTemplate(r)
}

func (s *SQLTemplateStore) ListTemplates(ctx context.Context) ([]*permit.Template, error) {
	q := `SELECT id, name, description, grants_json, created_at FROM templates ORDER BY created_at, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Template, 0)
	for r.Next() {
		t, err := scanTemplate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func scanTemplate(r rowScanner) (*permit.Template, error) {
	var idv, name, desc, grantsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &name, &desc, &grantsJSON, &createdRaw); err != nil {
		return nil, err
	}
	t := &permit.Template{ID: idv, Name: name, Description: desc, CreatedAt: scanTime(createdRaw)}
	_ = json.Unmarshal([]byte(grantsJSON), &t.Grants)
	return t, nil
}
