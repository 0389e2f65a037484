package store

import (
	"time"

	"github.com/carecompanion/n1/internal/experiment"
)

type User struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserState is one row of the experiment_states table joined with its user.
type UserState struct {
	UserID    string
	UserName  string
	State     experiment.State
	Corrupt   bool // stored record did not decode; State is unconfigured
	UpdatedAt time.Time
}
