package storage

// ShortPageID returns the first 8 chars of a CDP target ID, used as a
// filesystem-friendly file base for mirror output.
func ShortPageID(targetID string) string {
	if len(targetID) >= 8 {
		return targetID[:8]
	}
	return targetID
}
