package model

import "time"

// Absence marks an instant when an instructor cannot teach.
type Absence struct {
	ID           int64     `json:"id"`
	InstructorID int64     `json:"instructor_id"`
	AbsentAt     time.Time `json:"absent_at"` // UTC
	CreatedAt    time.Time `json:"created_at"`
}
