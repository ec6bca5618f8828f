package permit

import (
	"context"
	"testing"
)

func buildTestConfig() *Config {
	return NewConfigBuilder().
		Version(2).
		AddRole(NewRoleBuilder().ID("editor").Name("Editor").
			Allow("posts.*").
			Grant(NewGrantBuilder("posts.publish").Condition("tier", OpEquals, "senior").Build()).
			Build()).
		AddGroup(NewGroupBuilder().ID("eng").Name("Engineering").
			Subject("alice").Nested("backend").Allow("code.*").Build()).
		AddGroup(NewGroupBuilder().ID("backend").Name("Backend").
			Allow("deploys.read").Build()).
		AddAssignment(NewAssignmentBuilder("alice").Roles("editor").Groups("eng").
			Allow("billing.view").Build()).
		AddTemplate(&Template{ID: "auditor", Name: "Auditor", Grants: []Grant{{Pattern: "reports.*"}}}).
		EngineSettings(func(ec *EngineConfig) {
			ec.StrictMode = true
			ec.Separator = "."
			ec.CacheTTL = 5000
		}).
		Build()
}

func TestConfigYAMLRoundtrip(t *testing.T) {
	cfg := buildTestConfig()
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	loaded, err := NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	assertConfigEquivalent(t, cfg, loaded)
}

func TestConfigJSONRoundtrip(t *testing.T) {
	cfg := buildTestConfig()
	data, err := cfg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	loaded, err := NewConfigLoader().LoadJSON(data)
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	assertConfigEquivalent(t, cfg, loaded)
}

func TestConfigBinaryRoundtrip(t *testing.T) {
	cfg := buildTestConfig()
	data, err := EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	loaded, err := NewConfigLoader().LoadBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	assertConfigEquivalent(t, cfg, loaded)
	if loaded.Engine.CacheTTL != 5000 {
		t.Fatalf("engine section lost: %+v", loaded.Engine)
	}
	if !loaded.Engine.StrictMode {
		t.Fatal("strict mode flag lost")
	}
}

func TestConfigBinaryRejectsGarbage(t *testing.T) {
	if _, err := NewConfigLoader().LoadBinary([]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x00}); err == nil {
		t.Fatal("wrong magic must error")
	}
	if _, err := NewConfigLoader().LoadBinary(nil); err == nil {
		t.Fatal("empty input must error")
	}
}

func assertConfigEquivalent(t *testing.T, want, got *Config) {
	t.Helper()
	if got.Version != want.Version {
		t.Fatalf("version: got %d want %d", got.Version, want.Version)
	}
	if len(got.Roles) != len(want.Roles) || len(got.Groups) != len(want.Groups) ||
		len(got.Assignments) != len(want.Assignments) || len(got.Templates) != len(want.Templates) {
		t.Fatalf("entity counts differ: %+v", got)
	}
	if got.Roles[0].ID != "editor" || len(got.Roles[0].Permissions) != 2 {
		t.Fatalf("role content: %+v", got.Roles[0])
	}
	cond := got.Roles[0].Permissions[1].Conditions
	if len(cond) != 1 || cond[0].Operator != OpEquals || cond[0].Attribute != "tier" {
		t.Fatalf("conditions lost: %+v", cond)
	}
	if len(got.Groups[0].Members) != 2 {
		t.Fatalf("group members lost: %+v", got.Groups[0])
	}
	if got.Assignments[0].SubjectID != "alice" || len(got.Assignments[0].DirectGrants) != 1 {
		t.Fatalf("assignment content: %+v", got.Assignments[0])
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := buildTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := buildTestConfig()
	bad.Roles[0].Permissions[0].Pattern = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("empty grant pattern must fail validation")
	}

	bad = buildTestConfig()
	bad.Roles[0].Permissions[1].Conditions[0].Operator = "matches"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown operator must fail validation")
	}

	bad = buildTestConfig()
	bad.Groups[0].Members = append(bad.Groups[0].Members, GroupMember{SubjectID: "x", GroupID: "y"})
	if err := bad.Validate(); err == nil {
		t.Fatal("member with both references must fail validation")
	}

	bad = buildTestConfig()
	bad.Assignments[0].DirectGrants[0].Effect = "maybe"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown effect must fail validation")
	}
}

func TestEngineApplyConfig(t *testing.T) {
	templates := NewMemoryTemplateStore()
	e := newTestEngine(WithTemplateStore(templates))
	ctx := context.Background()

	cfg := buildTestConfig()
	if err := e.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	d, _ := e.HasPermission(ctx, "alice", "posts.edit", nil)
	if !d.Allowed {
		t.Fatalf("role from config should allow: %+v", d)
	}
	d, _ = e.HasPermission(ctx, "alice", "deploys.read", nil)
	if !d.Allowed {
		t.Fatalf("nested group from config should allow: %+v", d)
	}
	d, _ = e.HasPermission(ctx, "alice", "billing.view", nil)
	if !d.Allowed {
		t.Fatalf("direct grant from config should allow: %+v", d)
	}
	// config enabled strict mode
	d, _ = e.HasPermission(ctx, "alice", "unknown.op", nil)
	if d.Allowed || d.Reason != "strict mode: no matching grants" {
		t.Fatalf("strict mode setting not applied: %+v", d)
	}

	tpl, err := templates.GetTemplate(ctx, "auditor")
	if err != nil || tpl == nil {
		t.Fatalf("template not applied: %v %v", tpl, err)
	}

	// re-applying upserts instead of failing
	cfg.Roles[0].Permissions = []Grant{{Pattern: "posts.view"}}
	if err := e.ApplyConfig(ctx, cfg); err != nil {
		t.Fatalf("re-apply config: %v", err)
	}
	d, _ = e.HasPermission(ctx, "alice", "posts.edit", nil)
	if d.Allowed {
		t.Fatal("narrowed role should deny after re-apply")
	}
}
