package grading

import (
	"math"
	"strconv"
	"strings"
)

// numericMatch reports whether both strings read as numbers that agree
// within tol, so "3.0" matches an accepted "3".
func numericMatch(resp, accepted string, tol float64) bool {
	rv, rOK := parseFloatLoose(resp)
	av, aOK := parseFloatLoose(accepted)
	if !rOK || !aOK {
		return false
	}
	return math.Abs(rv-av) <= math.Max(tol, 0)
}

func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if sp := strings.Fields(s); len(sp) > 0 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}
