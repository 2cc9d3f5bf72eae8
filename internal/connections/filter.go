package connections

import "strings"

// Filter returns the records whose username contains term, ignoring case.
// The relative order of records is preserved; an empty term keeps every record.
func Filter(records []Record, term string) []Record {
	loweredTerm := strings.ToLower(strings.TrimSpace(term))
	filtered := make([]Record, 0, len(records))
	for _, record := range records {
		if loweredTerm == "" || strings.Contains(strings.ToLower(record.Username), loweredTerm) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// Remove drops the record with the given username and reports whether one was found.
func Remove(records []Record, username string) ([]Record, bool) {
	remaining := make([]Record, 0, len(records))
	removed := false
	for _, record := range records {
		if record.Username == username {
			removed = true
			continue
		}
		remaining = append(remaining, record)
	}
	return remaining, removed
}
