package order

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const numberPrefix = "ORD"

// NumberPrefix returns the prefix shared by every number generated on the
// UTC day of t, e.g. "ORD-20261017-".
func NumberPrefix(t time.Time) string {
	return fmt.Sprintf("%s-%s-", numberPrefix, t.UTC().Format("20060102"))
}

// sequence returns the daily sequence of number when it has the generated
// shape prefix + digits.
func sequence(number, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(number, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(rest)
	return n, err == nil
}

// IsGeneratedNumber reports whether number has the shape NextNumber
// produces for prefix. Caller-supplied numbers such as "ORD-20261017-T7"
// share the prefix but not the shape.
func IsGeneratedNumber(number, prefix string) bool {
	_, ok := sequence(number, prefix)
	return ok
}

// NextNumber returns the number following last for the UTC day of t.
// An empty or unparsable last starts the sequence at 1.
func NextNumber(last string, t time.Time) string {
	prefix := NumberPrefix(t)
	seq, _ := sequence(last, prefix)
	return fmt.Sprintf("%s%04d", prefix, seq+1)
}
