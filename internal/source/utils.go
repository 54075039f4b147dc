package source

import "strings"

func buildLineIndex(content string) []uint32 {
	out := make([]uint32, 0, strings.Count(content, "\n"))
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			out = append(out, safeUint32(i))
		}
	}
	return out
}

// SplitLines splits text on LF or CRLF terminators. A final terminator does
// not produce a trailing empty element.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
