package domain

import "time"

// Todo is a single task on a user's list.
type Todo struct {
	ID        int64     `json:"id"`
	Task      string    `json:"task"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"-"`
}

// Tasks returns the task text of each todo in order.
func Tasks(todos []Todo) []string {
	out := make([]string, 0, len(todos))
	for _, t := range todos {
		out = append(out, t.Task)
	}
	return out
}
