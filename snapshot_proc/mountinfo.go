//go:build linux

package snapshot_proc

import (
	"strconv"
	"strings"
)

// mountInfoEntry is one parsed line of /proc/<tid>/mountinfo, e.g.
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw
type mountInfoEntry struct {
	id         int
	parentID   int
	dev        uint64
	root       string
	mountPoint string
}

// parseMountInfoLine parses the five leading columns of a mountinfo
// line. Malformed lines report !ok.
func parseMountInfoLine(line string) (mountInfoEntry, bool) {
	var e mountInfoEntry

	fields := strings.Fields(line)
	if len(fields) < 5 {
		return e, false
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return e, false
	}
	parentID, err := strconv.Atoi(fields[1])
	if err != nil {
		return e, false
	}
	dev, ok := parseDev(fields[2], 10)
	if !ok {
		return e, false
	}

	e.id = id
	e.parentID = parentID
	e.dev = dev
	e.root = unescapeOctal(fields[3])
	e.mountPoint = unescapeOctal(fields[4])
	return e, true
}

// unescapeOctal decodes the \040-style escapes procfs uses for spaces,
// tabs and newlines in paths.
func unescapeOctal(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isOctal(c byte) bool { return c >= '0' && c <= '7' }
