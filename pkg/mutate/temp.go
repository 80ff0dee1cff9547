package mutate

import (
	"strings"

	"github.com/google/uuid"
)

// Optimistically created entities carry a prefixed id so reconciliation can
// find and replace them instead of duplicating once the server row arrives.
const tempIdPrefix = "temp-"

func TempId() string {
	return tempIdPrefix + uuid.NewString()
}

func IsTempId(id string) bool {
	return strings.HasPrefix(id, tempIdPrefix)
}
