package policy

import (
	"strings"

	"taskflow/models"
)

// StatusKeywords maps list-name fragments to the status a task takes when it
// is moved into such a list. Matching is case-insensitive substring.
type StatusKeywords map[models.TaskStatus][]string

// DefaultStatusKeywords covers English board names plus the Serbian names
// used by existing TaskFlow boards.
var DefaultStatusKeywords = StatusKeywords{
	models.StatusPlanned:    {"planned", "to do", "todo", "planirano"},
	models.StatusInProgress: {"in progress", "doing", "u toku"},
	models.StatusDone:       {"done", "completed", "završeno"},
}

// statusOrder keeps matching deterministic when a name hits several sets.
var statusOrder = []models.TaskStatus{models.StatusPlanned, models.StatusInProgress, models.StatusDone}

// StatusForList returns the status implied by a list name, and false when
// the name matches no keyword.
func (k StatusKeywords) StatusForList(listName string) (models.TaskStatus, bool) {
	name := strings.ToLower(listName)
	for _, status := range statusOrder {
		for _, keyword := range k[status] {
			if strings.Contains(name, keyword) {
				return status, true
			}
		}
	}
	return "", false
}
