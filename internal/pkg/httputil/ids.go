package httputil

import "github.com/google/uuid"

// ParseID validates s as a UUID and returns its canonical lowercase
// hyphenated form. Braced, URN and uppercase inputs are accepted; the
// result is what the database stores and compares against.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
