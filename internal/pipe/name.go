package pipe

import "github.com/google/uuid"

// RandomName returns a unique pipe name with the given prefix, suitable
// for ephemeral channels and tests.
func RandomName(prefix string) string {
	if prefix == "" {
		prefix = "eventpipe"
	}
	return prefix + "-" + uuid.NewString()
}
