package paths

import (
	"fmt"
	"regexp"
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that id can be used as a connection id and directory name.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid connection id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}
