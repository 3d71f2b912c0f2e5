//go:build linux

// Package snapshot_proc implements the snapshot accessor over a live
// system's /proc. Object identity is synthesized from what procfs
// exposes: inodes and files from (device, inode number) pairs, tasks
// from their tid, mount namespaces from their inum, and the per-task
// resource tables from the thread-group id.
//
// The tgid-based table identity means threads are always assumed to
// share their group leader's files, fs context and address space;
// tables unshared with CLONE_FILES and friends are not visible through
// /proc. A kernel-image accessor does not have that limitation.
package snapshot_proc

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"fsrefs/snapshot"
)

// Snapshot reads the current state of the local system through /proc.
type Snapshot struct {
	log *logger.Logger
}

// Open checks that procfs is mounted and returns a live snapshot.
func Open() (*Snapshot, error) {
	if _, err := os.Stat("/proc/self"); err != nil {
		return nil, fmt.Errorf("procfs not available: %w", err)
	}
	s := &Snapshot{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "procfs")),
	}
	s.log.Debugln("procfs snapshot opened")
	return s, nil
}

// Tasks walks /proc/<pid>/task/<tid> and returns one record per thread.
// Processes that exit mid-walk are skipped; only a failure to list /proc
// itself is a fault.
func (s *Snapshot) Tasks() ([]snapshot.Task, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, &snapshot.FaultError{Op: "task list"}
	}
	var out []snapshot.Task
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}
		tids, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
		if err != nil {
			continue // process exited while we were walking
		}
		for _, te := range tids {
			tid, err := strconv.Atoi(te.Name())
			if err != nil {
				continue
			}
			out = append(out, &Task{tid: tid, tgid: pid})
		}
	}
	s.log.Debugln("enumerated", len(out), "tasks")
	return out, nil
}

// InitialMountNamespace returns pid 1's namespace. Without permission to
// read it, our own namespace is the best approximation, keeping most
// mount lines unannotated.
func (s *Snapshot) InitialMountNamespace() (snapshot.MountNamespace, error) {
	self := os.Getpid()
	for _, t := range []*Task{{tid: 1, tgid: 1}, {tid: self, tgid: self}} {
		ns, err := t.MountNamespace()
		if err == nil && ns != nil {
			return ns, nil
		}
	}
	return nil, nil
}

// InodeAt returns a handle for the inode identified by a stat result,
// used for path-based target selection.
func InodeAt(dev, ino uint64) snapshot.Inode {
	return &Inode{dev: dev, ino: ino}
}

// SuperBlockAt returns a handle for the filesystem on the given device.
func SuperBlockAt(dev uint64) snapshot.SuperBlock {
	return &SuperBlock{dev: dev}
}

// objAddr synthesizes an object address from a (device, inode) pair. The
// kind carried by the handle keeps inodes, files and dentries distinct.
func objAddr(dev, ino uint64) snapshot.Address {
	return snapshot.Address(dev<<32 ^ ino)
}

// absent reports whether err denotes a record that simply is not there
// for this task: no permission, a kernel thread, or a slot that emptied
// before we read it.
func absent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
