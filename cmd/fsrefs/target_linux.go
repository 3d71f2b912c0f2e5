//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"

	"fsrefs/snapshot"
	"fsrefs/snapshot_proc"
)

func openLive() (snapshot.Snapshot, error) {
	return snapshot_proc.Open()
}

// resolvePathTarget identifies the inode or filesystem at path. The
// final symlink is not followed unless follow is set.
func resolvePathTarget(path string, follow, wantSB bool) (snapshot.Handle, error) {
	flags := unix.O_PATH | unix.O_CLOEXEC
	if !follow {
		flags |= unix.O_NOFOLLOW
	}
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if wantSB {
		return snapshot_proc.SuperBlockAt(uint64(st.Dev)), nil
	}
	return snapshot_proc.InodeAt(uint64(st.Dev), st.Ino), nil
}
