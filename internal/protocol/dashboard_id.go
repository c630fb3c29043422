package protocol

import "regexp"

const maxDashboardIDLength = 80

var dashboardIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}$`)

// IsValidDashboardID reports whether id is safe to use as a room key.
func IsValidDashboardID(id string) bool {
	if len(id) == 0 || len(id) > maxDashboardIDLength {
		return false
	}
	return dashboardIDPattern.MatchString(id)
}
