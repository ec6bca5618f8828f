package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permit"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLRoleStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLRoleStore(db)
	ctx := context.Background()

	role := &permit.Role{
		ID:   "editor",
		Name: "Editor",
		Permissions: []permit.Grant{
			{Pattern: "posts.*", Effect: permit.EffectAllow},
			{Pattern: "posts.delete", Effect: permit.EffectDeny},
		},
	}
	if err := store.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}

	got, err := store.GetRole(ctx, "editor")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if got == nil {
		t.Fatal("expected role, got nil")
	}
	if got.Name != "Editor" || len(got.Permissions) != 2 {
		t.Fatalf("unexpected role: %+v", got)
	}
	if got.Permissions[1].Effect != permit.EffectDeny {
		t.Fatalf("expected deny effect, got %s", got.Permissions[1].Effect)
	}

	missing, err := store.GetRole(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing role: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing role, got %+v", missing)
	}

	role.Name = "Content Editor"
	if err := store.UpdateRole(ctx, role); err != nil {
		t.Fatalf("update role: %v", err)
	}
	got, _ = store.GetRole(ctx, "editor")
	if got.Name != "Content Editor" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := store.DeleteRole(ctx, "editor"); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	got, err = store.GetRole(ctx, "editor")
	if err != nil || got != nil {
		t.Fatalf("expected deleted role to be gone, got %+v err %v", got, err)
	}
}

func TestSQLGroupStoreMembership(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLGroupStore(db)
	ctx := context.Background()

	parent := &permit.Group{
		ID:   "engineering",
		Name: "Engineering",
		Members: []permit.GroupMember{
			{GroupID: "backend"},
		},
		Permissions: []permit.Grant{{Pattern: "code.*"}},
	}
	child := &permit.Group{
		ID:   "backend",
		Name: "Backend",
		Members: []permit.GroupMember{
			{SubjectID: "alice"},
		},
		Permissions: []permit.Grant{{Pattern: "deploys.read"}},
	}
	if err := store.CreateGroup(ctx, parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if err := store.CreateGroup(ctx, child); err != nil {
		t.Fatalf("create child: %v", err)
	}

	direct, err := store.GetGroupsByUserID(ctx, "alice")
	if err != nil {
		t.Fatalf("groups by user: %v", err)
	}
	if len(direct) != 1 || direct[0].ID != "backend" {
		t.Fatalf("expected [backend], got %+v", direct)
	}

	// nested group references must not count as subject membership
	direct, err = store.GetGroupsByUserID(ctx, "backend")
	if err != nil {
		t.Fatalf("groups by user: %v", err)
	}
	if len(direct) != 0 {
		t.Fatalf("expected no direct membership for group id, got %+v", direct)
	}

	all, err := store.ListGroups(ctx)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(all))
	}
}

func TestSQLAssignmentStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLAssignmentStore(db)
	ctx := context.Background()

	a := &permit.Assignment{
		SubjectID: "alice",
		RoleIDs:   []string{"editor"},
		GroupIDs:  []string{"engineering"},
		DirectGrants: []permit.Grant{
			{Pattern: "billing.view", Effect: permit.EffectAllow},
		},
	}
	if err := store.CreateAssignment(ctx, a); err != nil {
		t.Fatalf("create assignment: %v", err)
	}

	got, err := store.GetAssignment(ctx, "alice")
	if err != nil {
		t.Fatalf("get assignment: %v", err)
	}
	if got == nil || len(got.RoleIDs) != 1 || len(got.DirectGrants) != 1 {
		t.Fatalf("unexpected assignment: %+v", got)
	}

	missing, err := store.GetAssignment(ctx, "bob")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing assignment, got %+v err %v", missing, err)
	}

	a.RoleIDs = append(a.RoleIDs, "viewer")
	if err := store.UpdateAssignment(ctx, a); err != nil {
		t.Fatalf("update assignment: %v", err)
	}
	got, _ = store.GetAssignment(ctx, "alice")
	if len(got.RoleIDs) != 2 {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := store.DeleteAssignment(ctx, "alice"); err != nil {
		t.Fatalf("delete assignment: %v", err)
	}
	got, _ = store.GetAssignment(ctx, "alice")
	if got != nil {
		t.Fatalf("expected deleted assignment to be gone, got %+v", got)
	}
}

func TestSQLTemplateStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store := NewSQLTemplateStore(db)
	ctx := context.Background()

	tpl := &permit.Template{
		ID:          "auditor",
		Name:        "Auditor",
		Description: "read-only across reporting",
		Grants:      []permit.Grant{{Pattern: "reports.*.view"}},
	}
	if err := store.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	got, err := store.GetTemplate(ctx, "auditor")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if got == nil || got.Name != "Auditor" || len(got.Grants) != 1 {
		t.Fatalf("unexpected template: %+v", got)
	}
	list, err := store.ListTemplates(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("list templates: %v (%d)", err, len(list))
	}
}

func TestSQLAuditStoreRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store, _ := NewSQLAuditStore(db)
	ctx := context.Background()

	entry := &permit.AuditEntry{
		ID:         "evt-1",
		Timestamp:  time.Now(),
		SubjectID:  "alice",
		Permission: "posts.edit",
		Decision: &permit.Decision{
			Allowed:   true,
			Reason:    "allowed by posts.*",
			Timestamp: time.Now(),
		},
	}
	if err := store.LogDecision(ctx, entry); err != nil {
		t.Fatalf("log decision: %v", err)
	}

	logs, err := store.GetAccessLog(ctx, permit.AuditFilter{SubjectID: "alice", Limit: 10})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.Permission != "posts.edit" || got.Decision == nil || !got.Decision.Allowed {
		t.Fatalf("unexpected entry: %+v", got)
	}

	logs, err = store.GetAccessLog(ctx, permit.AuditFilter{SubjectID: "bob"})
	if err != nil || len(logs) != 0 {
		t.Fatalf("expected no logs for bob, got %d err %v", len(logs), err)
	}
}
