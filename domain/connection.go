package domain

// ConnectionID identifies one live transport connection.
type ConnectionID string

// UnknownUserID is used when a connection did not announce its user.
const UnknownUserID = "N/A"
