package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLRoleStore persists roles in SQL (squealx)
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *permit.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `INSERT INTO roles(id, name, permissions_json, created_at) VALUES(:id, :name, :permissions_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": r.ID, "name": r.Name, "permissions_json": string(perms), "created_at": time.Now()})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *permit.Role) error {
	perms, _ := json.Marshal(r.Permissions)
	q := `UPDATE roles SET name=:name, permissions_json=:permissions_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": r.ID, "name": r.Name, "permissions_json": string(perms)})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	q := `DELETE FROM roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*permit.Role, error) {
	q := `SELECT id, name, permissions_json, created_at FROM roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanRole(r)
}

func (s *SQLRoleStore) ListRoles(ctx context.Context) ([]*permit.Role, error) {
	q := `SELECT id, name, permissions_json, created_at FROM roles ORDER BY created_at, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Role, 0)
	for r.Next() {
		role, err := scanRole(r)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

func scanRole(r rowScanner) (*permit.Role, error) {
	var idv, name, permsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &name, &permsJSON, &createdRaw); err != nil {
		return nil, err
	}
	role := &permit.Role{ID: idv, Name: name, CreatedAt: scanTime(createdRaw)}
	_ = json.Unmarshal([]byte(permsJSON), &role.Permissions)
	return role, nil
}
