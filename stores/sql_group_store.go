package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLGroupStore persists groups in SQL (squealx)
type SQLGroupStore struct {
	db *squealx.DB
}

func NewSQLGroupStore(db *squealx.DB) *SQLGroupStore {
	return &SQLGroupStore{db: db}
}

func (s *SQLGroupStore) CreateGroup(ctx context.Context, g *permit.Group) error {
	members, _ := json.Marshal(g.Members)
	perms, _ := json.Marshal(g.Permissions)
	q := `INSERT INTO groups(id, name, members_json, permissions_json, created_at) VALUES(:id, :name, :members_json, :permissions_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": g.ID, "name": g.Name, "members_json": string(members), "permissions_json": string(perms), "created_at": time.Now()})
	return err
}

func (s *SQLGroupStore) UpdateGroup(ctx context.Context, g *permit.Group) error {
	members, _ := json.Marshal(g.Members)
	perms, _ := json.Marshal(g.Permissions)
	q := `UPDATE groups SET name=:name, members_json=:members_json, permissions_json=:permissions_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": g.ID, "name": g.Name, "members_json": string(members), "permissions_json": string(perms)})
	return err
}

func (s *SQLGroupStore) DeleteGroup(ctx context.Context, id string) error {
	q := `DELETE FROM groups WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLGroupStore) GetGroup(ctx context.Context, id string) (*permit.Group, error) {
	q := `SELECT id, name, members_json, permissions_json, created_at FROM groups WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	return scanGroup(r)
}

func (s *SQLGroupStore) ListGroups(ctx context.Context) ([]*permit.Group, error) {
	q := `SELECT id, name, members_json, permissions_json, created_at FROM groups ORDER BY created_at, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Group, 0)
	for r.Next() {
		g, err := scanGroup(r)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// GetGroupsByUserID narrows candidates with a LIKE over the membership
// JSON, then confirms membership on the decoded value. The LIKE alone
// would also match nested group references with the same id.
func (s *SQLGroupStore) GetGroupsByUserID(ctx context.Context, subjectID string) ([]*permit.Group, error) {
	needle, _ := json.Marshal(subjectID)
	q := `SELECT id, name, members_json, permissions_json, created_at FROM groups WHERE members_json LIKE :needle ORDER BY created_at, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"needle": "%" + string(needle) + "%"})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Group, 0)
	for r.Next() {
		g, err := scanGroup(r)
		if err != nil {
			return nil, err
		}
		for _, m := range g.Members {
			if m.SubjectID == subjectID {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

func scanGroup(r rowScanner) (*permit.Group, error) {
	var idv, name, membersJSON, permsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &name, &membersJSON, &permsJSON, &createdRaw); err != nil {
		return nil, err
	}
	g := &permit.Group{ID: idv, Name: name, CreatedAt: scanTime(createdRaw)}
	_ = json.Unmarshal([]byte(membersJSON), &g.Members)
	_ = json.Unmarshal([]byte(permsJSON), &g.Permissions)
	return g, nil
}
