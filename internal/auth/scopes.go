// ABOUTME: Scope names carried in assertions and the subset check applied to them

package auth

// Scopes understood by both sides.
const (
	ScopeChatCompletion = "chat_completion"
	ScopeSearch         = "search"
	ScopeEmbeddings     = "embeddings"
	ScopeCheckAccess    = "check_access"
	ScopeSMWQuery       = "smw_query"
	ScopeMWAction       = "mw_action"
)

// HasScopes reports whether every required scope is in have. Order and
// duplicates do not matter; an empty requirement is always satisfied.
func HasScopes(have, required []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// AllScopes lists every scope in declaration order.
var AllScopes = []string{
	ScopeChatCompletion,
	ScopeSearch,
	ScopeEmbeddings,
	ScopeCheckAccess,
	ScopeSMWQuery,
	ScopeMWAction,
}

// KnownScope reports whether s is one of AllScopes.
func KnownScope(s string) bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}
