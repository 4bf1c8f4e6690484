// internal/domain/household/household.go
package household

import "time"

// ChoreStatus mirrors the chore lifecycle owned by the surrounding
// application. The engine only reads it.
type ChoreStatus string

const (
	ChoreStatusPending   ChoreStatus = "PENDING"
	ChoreStatusCompleted ChoreStatus = "COMPLETED"
	ChoreStatusVerified  ChoreStatus = "VERIFIED"
	ChoreStatusRejected  ChoreStatus = "REJECTED"
)

// Chore is the read model of a household chore.
type Chore struct {
	ID         string
	FamilyID   string
	Title      string
	AssignedTo string // user id of the responsible member
	DueDate    time.Time
	Status     ChoreStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Open reports whether the chore can still generate reminders.
func (c *Chore) Open() bool {
	return c.Status == ChoreStatusPending
}

// User is the read model of a family member, carrying the addresses each
// channel needs.
type User struct {
	ID        string
	FamilyID  string
	FirstName string
	ChatID    int64 // chat carrier identity; 0 when the user never linked one
	Phone     string
	Email     string
}
