package auth

// Scopes accepted by the wellness API.
const (
	ScopeRead = "wellness:read"
	ScopeSync = "wellness:sync"
)
