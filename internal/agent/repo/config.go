package repo

// Config selects the session backend.
type Config struct {
	// Backend is "redis", "sqlite" or "memory".
	Backend    string `envconfig:"SESSION_STORE" default:"redis"`
	SqlitePath string `envconfig:"SESSION_SQLITE_PATH" default:"sessions.db"`
}
