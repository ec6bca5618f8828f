package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLAssignmentStore persists subject assignments in SQL (squealx)
type SQLAssignmentStore struct {
	db *squealx.DB
}

func NewSQLAssignmentStore(db *squealx.DB) *SQLAssignmentStore {
	return &SQLAssignmentStore{db: db}
}

func (s *SQLAssignmentStore) CreateAssignment(ctx context.Context, a *permit.Assignment) error {
	roleIDs, _ := json.Marshal(a.RoleIDs)
	groupIDs, _ := json.Marshal(a.GroupIDs)
	grants, _ := json.Marshal(a.DirectGrants)
	q := `INSERT INTO assignments(subject_id, role_ids_json, group_ids_json, direct_grants_json, updated_at) VALUES(:subject_id, :role_ids_json, :group_ids_json, :direct_grants_json, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"subject_id": a.SubjectID, "role_ids_json": string(roleIDs), "group_ids_json": string(groupIDs), "direct_grants_json": string(grants), "updated_at": time.Now()})
	return err
}

func (s *SQLAssignmentStore) UpdateAssignment(ctx context.Context, a *permit.Assignment) error {
	roleIDs, _ := json.Marshal(a.RoleIDs)
	groupIDs, _ := json.Marshal(a.GroupIDs)
	grants, _ := json.Marshal(a.DirectGrants)
	q := `UPDATE assignments SET role_ids_json=:role_ids_json, group_ids_json=:group_ids_json, direct_grants_json=:direct_grants_json, updated_at=:updated_at WHERE subject_id=:subject_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"subject_id": a.SubjectID, "role_ids_json": string(roleIDs), "group_ids_json": string(groupIDs), "direct_grants_json": string(grants), "updated_at": time.Now()})
	return err
}

func (s *SQLAssignmentStore) DeleteAssignment(ctx context.Context, subjectID string) error {
	q := `DELETE FROM assignments WHERE subject_id = :subject_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"subject_id": subjectID})
	return err
}

func (s *SQLAssignmentStore) GetAssignment(ctx context.Context, subjectID string) (*permit.Assignment, error) {
	q := `SELECT subject_id, role_ids_json, group_ids_json, direct_grants_json, updated_at FROM assignments WHERE subject_id = :subject_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"subject_id": subjectID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var sid, roleJSON, groupJSON, grantsJSON string
	var updatedRaw interface{}
	if err := r.Scan(&sid, &roleJSON, &groupJSON, &grantsJSON, &updatedRaw); err != nil {
		return nil, err
	}
	a := &permit.Assignment{SubjectID: sid, UpdatedAt: scanTime(updatedRaw)}
	_ = json.Unmarshal([]byte(roleJSON), &a.RoleIDs)
	_ = json.Unmarshal([]byte(groupJSON), &a.GroupIDs)
	_ = json.Unmarshal([]byte(grantsJSON), &a.DirectGrants)
	return a, nil
}
