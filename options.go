package permit

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithLogger installs a structured logger on the engine.
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithGrantCache fronts EffectivePermissions with a cache keyed by
// subject id. Mutations invalidate the affected key before returning.
func WithGrantCache(c GrantCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithStrictMode requires at least one matching grant for any allow;
// with no match the decision is denied even if nothing denied it.
func WithStrictMode(strict bool) EngineOption {
	return func(e *Engine) { e.resolver.StrictMode = strict }
}

// WithWildcardMatching toggles "*" handling. When disabled, only exact
// pattern equality grants a permission.
func WithWildcardMatching(enabled bool) EngineOption {
	return func(e *Engine) { e.resolver.Matcher.Wildcards = enabled }
}

// WithSeparator overrides the permission segment separator.
func WithSeparator(sep string) EngineOption {
	return func(e *Engine) {
		if sep != "" {
			e.separator = sep
		}
	}
}

// WithTemplateStore enables ApplyTemplate.
func WithTemplateStore(s TemplateStore) EngineOption {
	return func(e *Engine) { e.templates = s }
}

// WithAuditStore enables the async decision audit trail.
func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) { e.audit = s }
}

// WithAuditBufferSize sizes the audit channel; entries are dropped when
// the buffer is full rather than blocking evaluation.
func WithAuditBufferSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.auditCh = make(chan AuditEntry, n)
		}
	}
}
