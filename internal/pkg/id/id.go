// Package id generates prefixed opaque identifiers.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// Entity prefixes. The prefix only aids debugging; uniqueness comes from the
// UUID v4 body.
const (
	Product = "p"
	User    = "u"
	Chat    = "c"
	Message = "m"
	Request = "r"
)

// New returns an identifier of the form "<prefix>_<uuid-v4 without dashes>".
func New(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
