package testutil

import (
	"strings"

	"github.com/google/uuid"
)

// RandomSubdomain returns a unique, valid subdomain starting with prefix.
func RandomSubdomain(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// RandomEmail returns a unique email address in the given domain.
func RandomEmail(local, domain string) string {
	return local + "+" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8] + "@" + domain
}
