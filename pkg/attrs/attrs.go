// Package attrs reads values back out of slog-style attribute lists, the
// variadic "key", value, ... arguments also accepted by slog.Logger.Info.
package attrs

import (
	"fmt"
	"log/slog"
)

// String returns the value stored under key. Elements may be alternating
// key/value pairs or slog.Attr values, mixed as slog allows. Strings and
// fmt.Stringer values are returned as text; anything else, or a missing key,
// yields "".
func String(attrs []any, key string) string {
	for i := 0; i < len(attrs); i++ {
		switch a := attrs[i].(type) {
		case slog.Attr:
			if a.Key == key {
				return text(a.Value.Any())
			}
		case string:
			if i+1 >= len(attrs) {
				return ""
			}
			if a == key {
				return text(attrs[i+1])
			}
			i++
		}
	}
	return ""
}

func text(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return ""
}
