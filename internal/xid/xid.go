package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier such as "mov-1b4e28ba-2fa1-...".
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
