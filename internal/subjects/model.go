package subjects

import "time"

// Subject statuses.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

type Subject struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
