package wsapi

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseQueryString parses a URL-encoded query string into a mapping, keeping
// only the first value for each key. A value is coerced to int64 when it is
// all digits without a leading zero, or a minus sign followed by digits;
// everything else stays a string.
func ParseQueryString(queryString string) map[string]any {
	values, _ := url.ParseQuery(queryString)
	params := make(map[string]any, len(values))
	for key, vs := range values {
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		value := vs[0]
		switch {
		case isDigits(value) && !strings.HasPrefix(value, "0"):
			params[key] = coerceDigits(value)
		case strings.HasPrefix(value, "-") && isDigits(value[1:]):
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				params[key] = value
				continue
			}
			params[key] = n
		default:
			params[key] = value
		}
	}
	return params
}
