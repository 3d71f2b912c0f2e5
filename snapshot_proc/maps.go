//go:build linux

package snapshot_proc

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// mapsEntry is one parsed line of /proc/<tid>/maps, e.g.
//
//	00400000-0040b000 r-xp 00000000 08:01 1576235   /usr/bin/cat
type mapsEntry struct {
	start  uint64
	end    uint64
	perms  string
	offset uint64
	dev    uint64
	inode  uint64
	path   string
}

// parseMapsLine parses one maps line. Malformed lines report !ok and are
// skipped by the caller.
func parseMapsLine(line string) (mapsEntry, bool) {
	var e mapsEntry

	fields, rest, ok := splitMapsLine(line)
	if !ok {
		return e, false
	}

	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return e, false
	}
	start, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return e, false
	}
	end, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil {
		return e, false
	}

	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return e, false
	}
	dev, ok := parseDev(fields[3], 16)
	if !ok {
		return e, false
	}
	inode, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return e, false
	}

	e.start = start
	e.end = end
	e.perms = fields[1]
	e.offset = offset
	e.dev = dev
	e.inode = inode
	e.path = rest
	return e, true
}

// splitMapsLine takes the five fixed columns; whatever remains is the
// pathname, which may itself contain spaces.
func splitMapsLine(line string) (fields [5]string, rest string, ok bool) {
	s := line
	for i := 0; i < 5; i++ {
		s = strings.TrimLeft(s, " \t")
		j := strings.IndexAny(s, " \t")
		if j < 0 {
			if i == 4 && s != "" {
				fields[4] = s
				return fields, "", true
			}
			return fields, "", false
		}
		fields[i] = s[:j]
		s = s[j:]
	}
	return fields, strings.TrimSpace(s), true
}

// parseDev parses a major:minor pair in the given base into a device
// number. maps uses hex, mountinfo uses decimal.
func parseDev(s string, base int) (uint64, bool) {
	maj, min, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	major, err := strconv.ParseUint(maj, base, 32)
	if err != nil {
		return 0, false
	}
	minor, err := strconv.ParseUint(min, base, 32)
	if err != nil {
		return 0, false
	}
	return unix.Mkdev(uint32(major), uint32(minor)), true
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}
