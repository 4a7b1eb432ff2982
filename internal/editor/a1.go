package editor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var a1Pattern = regexp.MustCompile(`^([A-Za-z]+)([0-9]+)$`)

// ParseA1 converts an A1 reference to zero-based indices, so C3 is (2, 2).
func ParseA1(addr string) (row, col int, err error) {
	m := a1Pattern.FindStringSubmatch(strings.TrimSpace(addr))
	if m == nil {
		return 0, 0, fmt.Errorf("invalid cell reference %q", addr)
	}
	letters := strings.ToUpper(m[1])
	if len(letters) > 6 {
		return 0, 0, fmt.Errorf("column out of range in %q", addr)
	}
	for _, r := range letters {
		col = col*26 + int(r-'A'+1)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("row out of range in %q", addr)
	}
	return n - 1, col - 1, nil
}

// FormatA1 is the inverse of ParseA1.
func FormatA1(row, col int) string {
	var letters []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		letters = append([]byte{byte('A' + (n-1)%26)}, letters...)
	}
	return string(letters) + strconv.Itoa(row+1)
}
