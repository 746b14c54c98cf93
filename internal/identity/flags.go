package identity

import (
	"strconv"
	"strings"
)

// ParseBool reads a form or query flag. HTML checkboxes submit "on", which
// counts as true; an empty value is false.
func ParseBool(raw string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "":
		return false, nil
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	return strconv.ParseBool(v)
}
