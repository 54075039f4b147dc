package concat

import "strings"

// lineDiff finds the single replacement turning old into new. The changed
// region starts and ends on line boundaries of old, so both sides cut at
// valid UTF-8 boundaries. It reports false when the texts are equal.
func lineDiff(old, new string) (start, oldEnd, newEnd int, ok bool) {
	if old == new {
		return 0, 0, 0, false
	}
	n := min(len(old), len(new))
	p := 0
	for p < n && old[p] == new[p] {
		p++
	}
	p = strings.LastIndexByte(old[:p], '\n') + 1

	s := 0
	for s < n-p && old[len(old)-1-s] == new[len(new)-1-s] {
		s++
	}
	for s > 0 {
		i := len(old) - s
		if i == 0 || old[i-1] == '\n' {
			break
		}
		s--
	}
	return p, len(old) - s, len(new) - s, true
}
