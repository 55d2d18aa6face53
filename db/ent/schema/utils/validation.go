package utils

import (
	"fmt"
	"strings"
)

// EnumValidator accepts only the listed values.
func EnumValidator(allowed ...string) func(string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return func(s string) error {
		if _, ok := set[s]; ok {
			return nil
		}
		return fmt.Errorf("%q is not one of [%s]", s, strings.Join(allowed, ", "))
	}
}
