package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLAuditStore persists decision audit entries in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, entry *permit.AuditEntry) error {
	decisionB, _ := json.Marshal(entry.Decision)
	allowed := 0
	reason := ""
	if entry.Decision != nil {
		allowed = boolToInt(entry.Decision.Allowed)
		reason = entry.Decision.Reason
	}
	q := `INSERT INTO audit_log(id, timestamp, subject_id, permission, allowed, reason, decision_json) VALUES(:id, :timestamp, :subject_id, :permission, :allowed, :reason, :decision_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp,
		"subject_id":    entry.SubjectID,
		"permission":    entry.Permission,
		"allowed":       allowed,
		"reason":        reason,
		"decision_json": string(decisionB),
	})
	return err
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter permit.AuditFilter) ([]*permit.AuditEntry, error) {
	q := `SELECT id, timestamp, subject_id, permission, decision_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.Permission != "" {
		q += " AND permission = :permission"
		params["permission"] = filter.Permission
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.AuditEntry, 0)
	for r.Next() {
		var id, subject, permission, decisionJSON string
		var timestampRaw interface{}
		if err := r.Scan(&id, &timestampRaw, &subject, &permission, &decisionJSON); err != nil {
			return nil, err
		}
		entry := &permit.AuditEntry{
			ID:         id,
			Timestamp:  scanTime(timestampRaw),
			SubjectID:  subject,
			Permission: permission,
		}
		_ = json.Unmarshal([]byte(decisionJSON), &entry.Decision)
		out = append(out, entry)
	}
	return out, nil
}
