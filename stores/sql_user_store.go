package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLUserStore persists users in SQL (squealx)
type SQLUserStore struct {
	db *squealx.DB
}

func NewSQLUserStore(db *squealx.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

func (s *SQLUserStore) CreateUser(ctx context.Context, u *permit.User) error {
	attrs, _ := json.Marshal(u.Attrs)
	q := `INSERT INTO users(id, name, email, attrs_json, created_at) VALUES(:id, :name, :email, :attrs_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": u.ID, "name": u.Name, "email": u.Email, "attrs_json": string(attrs), "created_at": time.Now()})
	return err
}

func (s *SQLUserStore) UpdateUser(ctx context.Context, u *permit.User) error {
	attrs, _ := json.Marshal(u.Attrs)
	q := `UPDATE users SET name=:name, email=:email, attrs_json=:attrs_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": u.ID, "name": u.Name, "email": u.Email, "attrs_json": string(attrs)})
	return err
}

func (s *SQLUserStore) DeleteUser(ctx context.Context, id string) error {
	q := `DELETE FROM users WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLUserStore) GetUser(ctx context.Context, id string) (*permit.User, error) {
	q := `SELECT id, name, email, attrs_json, created_at FROM users WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var idv, name, email, attrsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &name, &email, &attrsJSON, &createdRaw); err != nil {
		return nil, err
	}
	u := &permit.User{ID: idv, Name: name, Email: email, CreatedAt: scanTime(createdRaw)}
	_ = json.Unmarshal([]byte(attrsJSON), &u.Attrs)
	return u, nil
}
