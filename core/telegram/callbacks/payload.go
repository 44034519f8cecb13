package callbacks

import (
	"strconv"
	"strings"
)

// Separator joins payload parts, matching tele.ReplyMarkup.Data.
const Separator = "|"

// SplitPayload splits a raw payload into its parts; an empty payload is a syntax error.
func SplitPayload(p string) ([]string, error) {
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, Separator), nil
}

// ParseInt64Part parses parts[i] as int64; a missing or empty part yields zero.
func ParseInt64Part(parts []string, i int) (int64, error) {
	if i >= len(parts) || parts[i] == "" {
		return 0, nil
	}
	return strconv.ParseInt(parts[i], 10, 64)
}
