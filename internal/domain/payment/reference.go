package payment

import (
	"strings"

	"github.com/google/uuid"
)

// Reference ID prefixes per channel
const (
	OnlineReferencePrefix  = "WP-"
	OfflineReferencePrefix = "OFF-"
)

// NewReferenceID returns a fresh reference ID with the given prefix
func NewReferenceID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(id[:16])
}
