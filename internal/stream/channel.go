package stream

import (
	"fmt"
	"strconv"
	"strings"
)

const bookPrefix = "book."

// BookChannel builds "book.<instrument>.<depth>".
func BookChannel(instrument string, depth int) string {
	return fmt.Sprintf("%s%s.%d", bookPrefix, instrument, depth)
}

// ParseBookChannel splits a book channel into instrument and depth.
func ParseBookChannel(channel string) (instrument string, depth int, ok bool) {
	if !strings.HasPrefix(channel, bookPrefix) {
		return "", 0, false
	}
	rest := strings.TrimPrefix(channel, bookPrefix)
	i := strings.LastIndex(rest, ".")
	if i < 0 {
		return "", 0, false
	}
	depth, err := strconv.Atoi(rest[i+1:])
	if err != nil {
		return "", 0, false
	}
	return rest[:i], depth, true
}
