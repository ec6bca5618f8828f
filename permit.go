package permit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	phlog "github.com/oarkflow/log"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// User is a subject known to the host application. The engine only needs
// its id; the rest is carried for hosts that persist users through the
// same store.
type User struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Email     string         `json:"email,omitempty" yaml:"email,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty" yaml:"attrs,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"-"`
}

// Role is a named bundle of conditional grants. The engine treats roles
// as read-only input.
type Role struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Permissions []Grant   `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// GroupMember references either a subject or a nested group, never both.
// Nested groups are referenced by id and dereferenced through the group
// store, so the walker's visited set operates on stable keys.
type GroupMember struct {
	SubjectID string `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	GroupID   string `json:"group_id,omitempty" yaml:"group_id,omitempty"`
}

// Group is a named membership set with its own grants. Member chains may
// form cycles; the walker guards with a visited set keyed by group id.
type Group struct {
	ID          string        `json:"id" yaml:"id"`
	Name        string        `json:"name" yaml:"name"`
	Members     []GroupMember `json:"members" yaml:"members"`
	Permissions []Grant       `json:"permissions" yaml:"permissions"`
	CreatedAt   time.Time     `json:"created_at" yaml:"-"`
}

// Assignment binds a subject to roles, groups and direct grants. One
// assignment per subject; it is created lazily on the first grant
// operation and only deleted explicitly or with its subject.
type Assignment struct {
	SubjectID    string    `json:"subject_id" yaml:"subject_id"`
	RoleIDs      []string  `json:"role_ids" yaml:"role_ids"`
	GroupIDs     []string  `json:"group_ids" yaml:"group_ids"`
	DirectGrants []Grant   `json:"direct_grants,omitempty" yaml:"direct_grants,omitempty"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// Template is a reusable grant bundle. Template CRUD is host plumbing;
// the engine can stamp one onto a subject via ApplyTemplate.
type Template struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Grants      []Grant   `json:"grants" yaml:"grants"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// AuditEntry records one permission decision.
type AuditEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	SubjectID  string    `json:"subject_id"`
	Permission string    `json:"permission"`
	Decision   *Decision `json:"decision"`
}

// AuditFilter narrows GetAccessLog queries.
type AuditFilter struct {
	SubjectID  string
	Permission string
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// Store contracts: Get operations return (nil, nil) when the id does not
// exist. Errors are reserved for genuine I/O failure, which keeps
// aggregation total over large graphs.

type UserStore interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error
}

type RoleStore interface {
	GetRole(ctx context.Context, id string) (*Role, error)
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]*Role, error)
}

type GroupStore interface {
	GetGroup(ctx context.Context, id string) (*Group, error)
	CreateGroup(ctx context.Context, g *Group) error
	UpdateGroup(ctx context.Context, g *Group) error
	DeleteGroup(ctx context.Context, id string) error
	ListGroups(ctx context.Context) ([]*Group, error)
	// GetGroupsByUserID returns groups that list the subject as a direct
	// member. Nested membership is the walker's concern, not the store's.
	GetGroupsByUserID(ctx context.Context, subjectID string) ([]*Group, error)
}

type AssignmentStore interface {
	GetAssignment(ctx context.Context, subjectID string) (*Assignment, error)
	CreateAssignment(ctx context.Context, a *Assignment) error
	UpdateAssignment(ctx context.Context, a *Assignment) error
	DeleteAssignment(ctx context.Context, subjectID string) error
}

type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*Template, error)
	CreateTemplate(ctx context.Context, t *Template) error
	UpdateTemplate(ctx context.Context, t *Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplates(ctx context.Context) ([]*Template, error)
}

type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// Store aggregates the entity stores for implementations that back all
// of them with one backend.
type Store interface {
	UserStore
	RoleStore
	GroupStore
	AssignmentStore
	TemplateStore
}

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

func (s *MemoryUserStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[id], nil
}

func (s *MemoryUserStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.CreatedAt = time.Now()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) UpdateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *MemoryUserStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	return nil
}

type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
	order []string
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*Role)}
}

func (s *MemoryRoleStore) GetRole(_ context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[id], nil
}

func (s *MemoryRoleStore) CreateRole(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.CreatedAt = time.Now()
	if _, exists := s.roles[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) UpdateRole(_ context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[r.ID]; !exists {
		s.order = append(s.order, r.ID)
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryRoleStore) ListRoles(_ context.Context) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0, len(s.order))
	for _, id := range s.order {
		if r, ok := s.roles[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*Group
	order  []string
}

func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[string]*Group)}
}

func (s *MemoryGroupStore) GetGroup(_ context.Context, id string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groups[id], nil
}

func (s *MemoryGroupStore) CreateGroup(_ context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.CreatedAt = time.Now()
	if _, exists := s.groups[g.ID]; !exists {
		s.order = append(s.order, g.ID)
	}
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) UpdateGroup(_ context.Context, g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; !exists {
		s.order = append(s.order, g.ID)
	}
	s.groups[g.ID] = g
	return nil
}

func (s *MemoryGroupStore) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	for i, gid := range s.order {
		if gid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryGroupStore) ListGroups(_ context.Context) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, 0, len(s.order))
	for _, id := range s.order {
		if g, ok := s.groups[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *MemoryGroupStore) GetGroupsByUserID(_ context.Context, subjectID string) ([]*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, 0)
	for _, id := range s.order {
		g, ok := s.groups[id]
		if !ok {
			continue
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

type MemoryAssignmentStore struct {
	mu          sync.RWMutex
	assignments map[string]*Assignment
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{assignments: make(map[string]*Assignment)}
}

func (s *MemoryAssignmentStore) GetAssignment(_ context.Context, subjectID string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[subjectID]
	if !ok {
		return nil, nil
	}
	dup := *a
	return &dup, nil
}

func (s *MemoryAssignmentStore) CreateAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.UpdatedAt = time.Now()
	dup := *a
	s.assignments[a.SubjectID] = &dup
	return nil
}

func (s *MemoryAssignmentStore) UpdateAssignment(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.UpdatedAt = time.Now()
	dup := *a
	s.assignments[a.SubjectID] = &dup
	return nil
}

func (s *MemoryAssignmentStore) DeleteAssignment(_ context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.assignments, subjectID)
	return nil
}

type MemoryTemplateStore struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[string]*Template)}
}

func (s *MemoryTemplateStore) GetTemplate(_ context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates[id], nil
}

func (s *MemoryTemplateStore) CreateTemplate(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.CreatedAt = time.Now()
	s.templates[t.ID] = t
	return nil
}

func (s *MemoryTemplateStore) UpdateTemplate(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
	return nil
}

func (s *MemoryTemplateStore) DeleteTemplate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

func (s *MemoryTemplateStore) ListTemplates(_ context.Context) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	return out, nil
}

type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*AuditEntry, 0)
	for _, entry := range s.entries {
		if filter.SubjectID != "" && entry.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Permission != "" && entry.Permission != filter.Permission {
			continue
		}
		if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
			continue
		}
		result = append(result, entry)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// ============================================================================
// PERMISSION ENGINE
// ============================================================================

// Logger is re-exported so hosts can implement it without importing the
// logger package.
type Logger = logger.Logger

// Engine evaluates subject permissions against the stores. All state
// lives in the stores and the optional grant cache; the engine itself
// keeps nothing authoritative between calls.
type Engine struct {
	users       UserStore
	roles       RoleStore
	groups      GroupStore
	assignments AssignmentStore
	templates   TemplateStore
	audit       AuditStore
	cache       GrantCache
	resolver    *Resolver
	separator   string
	logger      Logger
	auditCh     chan AuditEntry
}

// NewEngine wires an engine to its stores. Options adjust matching,
// caching, logging and auditing; the defaults are wildcard matching on,
// strict mode off, no cache and no audit store.
func NewEngine(users UserStore, roles RoleStore, groups GroupStore, assignments AssignmentStore, opts ...EngineOption) *Engine {
	e := &Engine{
		users:       users,
		roles:       roles,
		groups:      groups,
		assignments: assignments,
		separator:   DefaultSeparator,
		resolver:    NewResolver(),
		logger:      logger.NewNull(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver.Matcher.Separator = e.separator
	if e.audit == nil {
		e.auditCh = nil
	} else {
		if e.auditCh == nil {
			e.auditCh = make(chan AuditEntry, 1024)
		}
		go func() {
			bg := context.Background()
			for entry := range e.auditCh {
				_ = e.audit.LogDecision(bg, &entry)
			}
		}()
	}
	return e
}

// ============================================================================
// EVALUATION API
// ============================================================================

// HasPermission evaluates one required permission for a subject. The
// supplied attrs are merged into the evaluation context, which always
// carries the subject id and a timestamp.
func (e *Engine) HasPermission(ctx context.Context, subjectID, permission string, attrs Context) (*Decision, error) {
	grants, err := e.EffectivePermissions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	required := NormalizeWith(permission, e.separator)
	decision := e.resolver.Decide(required, grants, e.buildContext(subjectID, attrs))
	e.logDecision(subjectID, required, decision)
	return decision, nil
}

// HasPermissions evaluates a batch of permissions against one effective
// grant fetch. The result maps each requested permission (as given) to
// its decision.
func (e *Engine) HasPermissions(ctx context.Context, subjectID string, permissions []string, attrs Context) (map[string]*Decision, error) {
	grants, err := e.EffectivePermissions(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	evalCtx := e.buildContext(subjectID, attrs)
	out := make(map[string]*Decision, len(permissions))
	for _, p := range permissions {
		required := NormalizeWith(p, e.separator)
		decision := e.resolver.Decide(required, grants, evalCtx)
		e.logDecision(subjectID, required, decision)
		out[p] = decision
	}
	return out, nil
}

// EffectivePermissions flattens a subject's grants: direct grants first,
// then role permissions in listed order, then group permissions in
// listed order expanded depth-first through nested groups. Missing
// roles, groups or the assignment itself contribute nothing.
func (e *Engine) EffectivePermissions(ctx context.Context, subjectID string) ([]Grant, error) {
	if e.cache != nil {
		if grants, ok := e.cache.Get(subjectID); ok {
			return grants, nil
		}
	}
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	grants := make([]Grant, 0)
	if assignment == nil {
		if e.cache != nil {
			e.cache.Set(subjectID, grants)
		}
		return grants, nil
	}
	grants = append(grants, assignment.DirectGrants...)
	for _, roleID := range assignment.RoleIDs {
		role, err := e.roles.GetRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("fetch role %s: %w", roleID, err)
		}
		if role == nil {
			e.logger.Debug("role missing, skipped", "role", roleID, "subject", subjectID)
			continue
		}
		grants = append(grants, role.Permissions...)
	}
	visited := make(map[string]bool)
	for _, groupID := range assignment.GroupIDs {
		if err := e.walkGroupGrants(ctx, groupID, visited, &grants); err != nil {
			return nil, err
		}
	}
	if e.cache != nil {
		e.cache.Set(subjectID, grants)
	}
	return grants, nil
}

// walkGroupGrants collects a group's permissions and recurses into
// nested group members. The visited set guards against cycles and
// duplicate ids, including duplicates in the initial GroupIDs list.
func (e *Engine) walkGroupGrants(ctx context.Context, groupID string, visited map[string]bool, grants *[]Grant) error {
	if visited[groupID] {
		return nil
	}
	visited[groupID] = true
	group, err := e.groups.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	if group == nil {
		e.logger.Debug("group missing, skipped", "group", groupID)
		return nil
	}
	*grants = append(*grants, group.Permissions...)
	for _, m := range group.Members {
		if m.GroupID == "" {
			continue
		}
		if err := e.walkGroupGrants(ctx, m.GroupID, visited, grants); err != nil {
			return err
		}
	}
	return nil
}

// UserRoles returns the roles listed on the subject's assignment,
// skipping ids that no longer resolve.
func (e *Engine) UserRoles(ctx context.Context, subjectID string) ([]*Role, error) {
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	roles := make([]*Role, 0)
	if assignment == nil {
		return roles, nil
	}
	for _, roleID := range assignment.RoleIDs {
		role, err := e.roles.GetRole(ctx, roleID)
		if err != nil {
			return nil, fmt.Errorf("fetch role %s: %w", roleID, err)
		}
		if role != nil {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// UserGroups returns every group reachable for the subject: groups on
// the assignment, groups listing the subject as a direct member, and
// all nested groups, de-duplicated by id.
func (e *Engine) UserGroups(ctx context.Context, subjectID string) ([]*Group, error) {
	seeds := make([]string, 0)
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	if assignment != nil {
		seeds = append(seeds, assignment.GroupIDs...)
	}
	direct, err := e.groups.GetGroupsByUserID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("fetch groups for %s: %w", subjectID, err)
	}
	for _, g := range direct {
		seeds = append(seeds, g.ID)
	}
	visited := make(map[string]bool)
	groups := make([]*Group, 0)
	for _, id := range seeds {
		if err := e.walkGroupTree(ctx, id, visited, &groups); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (e *Engine) walkGroupTree(ctx context.Context, groupID string, visited map[string]bool, groups *[]*Group) error {
	if visited[groupID] {
		return nil
	}
	visited[groupID] = true
	group, err := e.groups.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("fetch group %s: %w", groupID, err)
	}
	if group == nil {
		return nil
	}
	*groups = append(*groups, group)
	for _, m := range group.Members {
		if m.GroupID == "" {
			continue
		}
		if err := e.walkGroupTree(ctx, m.GroupID, visited, groups); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) buildContext(subjectID string, attrs Context) Context {
	ctx := make(Context, len(attrs)+2)
	for k, v := range attrs {
		ctx[k] = v
	}
	if _, ok := ctx["subject"]; !ok {
		ctx["subject"] = map[string]any{"id": subjectID}
	}
	if _, ok := ctx["timestamp"]; !ok {
		ctx["timestamp"] = time.Now()
	}
	return ctx
}

func (e *Engine) logDecision(subjectID, permission string, decision *Decision) {
	phlog.Info().
		Str("subject", subjectID).
		Str("permission", permission).
		Bool("allowed", decision.Allowed).
		Str("reason", decision.Reason).
		Msg("permission decision")

	if e.auditCh == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  decision.Timestamp,
		SubjectID:  subjectID,
		Permission: permission,
		Decision:   decision,
	}
	select {
	case e.auditCh <- entry:
	default:
		// drop rather than block the evaluation path
	}
}

// GetAccessLog queries the configured audit store.
func (e *Engine) GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	if e.audit == nil {
		return nil, fmt.Errorf("no audit store configured")
	}
	return e.audit.GetAccessLog(ctx, filter)
}

// ============================================================================
// MANAGEMENT API
// ============================================================================

// ensureAssignment fetches the subject's assignment, lazily creating an
// empty one on first use.
func (e *Engine) ensureAssignment(ctx context.Context, subjectID string) (*Assignment, bool, error) {
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return nil, false, fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	if assignment != nil {
		return assignment, false, nil
	}
	return &Assignment{SubjectID: subjectID}, true, nil
}

func (e *Engine) saveAssignment(ctx context.Context, a *Assignment, created bool) error {
	var err error
	if created {
		err = e.assignments.CreateAssignment(ctx, a)
	} else {
		err = e.assignments.UpdateAssignment(ctx, a)
	}
	if err != nil {
		return fmt.Errorf("save assignment for %s: %w", a.SubjectID, err)
	}
	e.invalidateSubject(a.SubjectID)
	return nil
}

// AssignRole adds a role to the subject's assignment. Adding a role the
// subject already holds is a no-op.
func (e *Engine) AssignRole(ctx context.Context, subjectID, roleID string) error {
	assignment, created, err := e.ensureAssignment(ctx, subjectID)
	if err != nil {
		return err
	}
	for _, id := range assignment.RoleIDs {
		if id == roleID {
			return nil
		}
	}
	assignment.RoleIDs = append(assignment.RoleIDs, roleID)
	return e.saveAssignment(ctx, assignment, created)
}

// UnassignRole removes a role from the subject's assignment.
func (e *Engine) UnassignRole(ctx context.Context, subjectID, roleID string) error {
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	if assignment == nil {
		return nil
	}
	kept := make([]string, 0, len(assignment.RoleIDs))
	for _, id := range assignment.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	assignment.RoleIDs = kept
	return e.saveAssignment(ctx, assignment, false)
}

// AddUserToGroup adds a group to the subject's assignment.
func (e *Engine) AddUserToGroup(ctx context.Context, subjectID, groupID string) error {
	assignment, created, err := e.ensureAssignment(ctx, subjectID)
	if err != nil {
		return err
	}
	for _, id := range assignment.GroupIDs {
		if id == groupID {
			return nil
		}
	}
	assignment.GroupIDs = append(assignment.GroupIDs, groupID)
	return e.saveAssignment(ctx, assignment, created)
}

// RemoveUserFromGroup removes a group from the subject's assignment.
func (e *Engine) RemoveUserFromGroup(ctx context.Context, subjectID, groupID string) error {
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	if assignment == nil {
		return nil
	}
	kept := make([]string, 0, len(assignment.GroupIDs))
	for _, id := range assignment.GroupIDs {
		if id != groupID {
			kept = append(kept, id)
		}
	}
	assignment.GroupIDs = kept
	return e.saveAssignment(ctx, assignment, false)
}

// GrantPermission appends a direct grant to the subject's assignment.
// The pattern is normalized before storage.
func (e *Engine) GrantPermission(ctx context.Context, subjectID string, grant Grant) error {
	assignment, created, err := e.ensureAssignment(ctx, subjectID)
	if err != nil {
		return err
	}
	grant.Pattern = NormalizeWith(grant.Pattern, e.separator)
	assignment.DirectGrants = append(assignment.DirectGrants, grant)
	return e.saveAssignment(ctx, assignment, created)
}

// RevokePermission removes every direct grant whose pattern equals the
// given permission pattern after normalization.
func (e *Engine) RevokePermission(ctx context.Context, subjectID, pattern string) error {
	assignment, err := e.assignments.GetAssignment(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("fetch assignment for %s: %w", subjectID, err)
	}
	if assignment == nil {
		return nil
	}
	pattern = NormalizeWith(pattern, e.separator)
	kept := make([]Grant, 0, len(assignment.DirectGrants))
	for _, g := range assignment.DirectGrants {
		if g.Pattern != pattern {
			kept = append(kept, g)
		}
	}
	assignment.DirectGrants = kept
	return e.saveAssignment(ctx, assignment, false)
}

// ApplyTemplate stamps a template's grants onto the subject as direct
// grants.
func (e *Engine) ApplyTemplate(ctx context.Context, subjectID, templateID string) error {
	if e.templates == nil {
		return fmt.Errorf("no template store configured")
	}
	tpl, err := e.templates.GetTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("fetch template %s: %w", templateID, err)
	}
	if tpl == nil {
		return fmt.Errorf("template not found: %s", templateID)
	}
	assignment, created, err := e.ensureAssignment(ctx, subjectID)
	if err != nil {
		return err
	}
	for _, g := range tpl.Grants {
		g.Pattern = NormalizeWith(g.Pattern, e.separator)
		assignment.DirectGrants = append(assignment.DirectGrants, g)
	}
	return e.saveAssignment(ctx, assignment, created)
}

// CreateRole normalizes the role's grant patterns, persists it and
// flushes the grant cache: a role change can affect any subject.
func (e *Engine) CreateRole(ctx context.Context, role *Role) error {
	e.normalizeGrants(role.Permissions)
	if err := e.roles.CreateRole(ctx, role); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

func (e *Engine) UpdateRole(ctx context.Context, role *Role) error {
	e.normalizeGrants(role.Permissions)
	if err := e.roles.UpdateRole(ctx, role); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	if err := e.roles.DeleteRole(ctx, id); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

// CreateGroup normalizes the group's grant patterns and persists it.
func (e *Engine) CreateGroup(ctx context.Context, group *Group) error {
	e.normalizeGrants(group.Permissions)
	if err := e.groups.CreateGroup(ctx, group); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

func (e *Engine) UpdateGroup(ctx context.Context, group *Group) error {
	e.normalizeGrants(group.Permissions)
	if err := e.groups.UpdateGroup(ctx, group); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

func (e *Engine) DeleteGroup(ctx context.Context, id string) error {
	if err := e.groups.DeleteGroup(ctx, id); err != nil {
		return err
	}
	e.flushCache()
	return nil
}

// DeleteUser removes the subject and cascades its assignment.
func (e *Engine) DeleteUser(ctx context.Context, subjectID string) error {
	if err := e.assignments.DeleteAssignment(ctx, subjectID); err != nil {
		return fmt.Errorf("delete assignment for %s: %w", subjectID, err)
	}
	if e.users != nil {
		if err := e.users.DeleteUser(ctx, subjectID); err != nil {
			return fmt.Errorf("delete user %s: %w", subjectID, err)
		}
	}
	e.invalidateSubject(subjectID)
	return nil
}

func (e *Engine) normalizeGrants(grants []Grant) {
	for i := range grants {
		grants[i].Pattern = NormalizeWith(grants[i].Pattern, e.separator)
	}
}

func (e *Engine) invalidateSubject(subjectID string) {
	if e.cache != nil {
		e.cache.Invalidate(subjectID)
	}
}

func (e *Engine) flushCache() {
	if e.cache != nil {
		e.cache.Flush()
	}
}
