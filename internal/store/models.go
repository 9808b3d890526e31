package store

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultInstructionsText and DefaultTemperature apply when the instructions row is absent.
const (
	DefaultInstructionsText = ""
	DefaultTemperature      = 0.7
)

type User struct {
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"` // Do not expose this in JSON responses
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Instructions is the singleton configuration row (id = 1).
type Instructions struct {
	Text        string  `db:"text" json:"text"`
	Temperature float64 `db:"temperature" json:"temperature"`
}
