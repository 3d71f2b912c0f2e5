//go:build linux

package snapshot_proc

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"fsrefs/snapshot"
)

// Task is one thread, read from /proc/<tgid>/task/<tid>.
type Task struct {
	tid  int
	tgid int
}

func (t *Task) Address() snapshot.Address { return snapshot.Address(t.tid) }
func (t *Task) Kind() snapshot.Kind       { return snapshot.KindTask }

func (t *Task) dir() string {
	return fmt.Sprintf("/proc/%d/task/%d", t.tgid, t.tid)
}

func (t *Task) PID() (int, error) { return t.tid, nil }

func (t *Task) Comm() (string, error) {
	data, err := os.ReadFile(t.dir() + "/comm")
	if err != nil {
		return "", &snapshot.FaultError{Op: "task.comm", Addr: t.Address()}
	}
	return strings.TrimSpace(string(data)), nil
}

func (t *Task) GroupLeader() (snapshot.Task, error) {
	if t.tid == t.tgid {
		return t, nil
	}
	return &Task{tid: t.tgid, tgid: t.tgid}, nil
}

// Files reads the task's fd directory. Descriptors that close mid-walk
// are skipped; an unreadable directory means the table is absent.
func (t *Task) Files() (snapshot.FileTable, error) {
	fdDir := t.dir() + "/fd"
	entries, err := os.ReadDir(fdDir)
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, &snapshot.FaultError{Op: "fd table", Addr: t.Address()}
	}
	ft := &FileTable{tgid: t.tgid}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		link := fdDir + "/" + e.Name()
		var st unix.Stat_t
		if err := unix.Stat(link, &st); err != nil {
			continue // fd closed while we were walking
		}
		ft.entries = append(ft.entries, snapshot.OpenFile{
			FD:   fd,
			File: &File{dev: uint64(st.Dev), ino: st.Ino, link: link},
		})
	}
	// ReadDir sorts lexically; descriptor order reads better.
	sort.Slice(ft.entries, func(i, j int) bool {
		return ft.entries[i].FD < ft.entries[j].FD
	})
	return ft, nil
}

func (t *Task) FSContext() (snapshot.FSContext, error) {
	return &FSContext{task: t}, nil
}

func (t *Task) AddressSpace() (snapshot.AddressSpace, error) {
	return &AddressSpace{task: t}, nil
}

func (t *Task) MountNamespace() (snapshot.MountNamespace, error) {
	target, err := os.Readlink(t.dir() + "/ns/mnt")
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, &snapshot.FaultError{Op: "mnt namespace", Addr: t.Address()}
	}
	inum, ok := parseNSLink(target)
	if !ok {
		return nil, &snapshot.FaultError{Op: "mnt namespace", Addr: t.Address()}
	}
	return &Namespace{inum: inum, task: t}, nil
}

// parseNSLink extracts the inum from a namespace link target such as
// "mnt:[4026531840]".
func parseNSLink(target string) (uint64, bool) {
	open := strings.IndexByte(target, '[')
	end := strings.IndexByte(target, ']')
	if open < 0 || end <= open {
		return 0, false
	}
	inum, err := strconv.ParseUint(target[open+1:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return inum, true
}

// FileTable is a descriptor table snapshot. Its identity is the owning
// thread group: /proc cannot expose the kernel table pointer.
type FileTable struct {
	tgid    int
	entries []snapshot.OpenFile
}

func (ft *FileTable) Address() snapshot.Address { return snapshot.Address(ft.tgid) }
func (ft *FileTable) Kind() snapshot.Kind       { return snapshot.KindFileTable }

func (ft *FileTable) Entries() ([]snapshot.OpenFile, error) {
	return ft.entries, nil
}

// FSContext is a task's root/cwd pair.
type FSContext struct {
	task *Task
}

func (c *FSContext) Address() snapshot.Address { return snapshot.Address(c.task.tgid) }
func (c *FSContext) Kind() snapshot.Kind       { return snapshot.KindFSContext }

func (c *FSContext) Root() (snapshot.Path, error) {
	return pathAt(c.task.dir() + "/root")
}

func (c *FSContext) WorkingDir() (snapshot.Path, error) {
	return pathAt(c.task.dir() + "/cwd")
}

// pathAt stats a procfs symlink and wraps it as a path record.
func pathAt(link string) (snapshot.Path, error) {
	var st unix.Stat_t
	if err := unix.Stat(link, &st); err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, &snapshot.FaultError{Op: link}
	}
	return &Path{dev: uint64(st.Dev), ino: st.Ino, link: link}, nil
}

// AddressSpace is a task's memory descriptor, read from maps and the exe
// symlink.
type AddressSpace struct {
	task *Task
}

func (m *AddressSpace) Address() snapshot.Address { return snapshot.Address(m.task.tgid) }
func (m *AddressSpace) Kind() snapshot.Kind       { return snapshot.KindAddressSpace }

func (m *AddressSpace) ExecFile() (snapshot.File, error) {
	link := m.task.dir() + "/exe"
	var st unix.Stat_t
	if err := unix.Stat(link, &st); err != nil {
		if absent(err) {
			return nil, nil // kernel thread, or exe not readable
		}
		return nil, &snapshot.FaultError{Op: link}
	}
	return &File{dev: uint64(st.Dev), ino: st.Ino, link: link}, nil
}

func (m *AddressSpace) Mappings() ([]snapshot.Mapping, error) {
	f, err := os.Open(m.task.dir() + "/maps")
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, &snapshot.FaultError{Op: "vma list", Addr: m.Address()}
	}
	defer f.Close()

	var out []snapshot.Mapping
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		ent, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		vma := &Mapping{start: ent.start, end: ent.end}
		if ent.inode != 0 {
			// map_files gives a resolvable link for the backing file.
			link := fmt.Sprintf("%s/map_files/%x-%x", m.task.dir(), ent.start, ent.end)
			vma.file = &File{dev: ent.dev, ino: ent.inode, link: link}
		}
		out = append(out, vma)
	}
	if err := scanner.Err(); err != nil {
		return nil, &snapshot.FaultError{Op: "vma list", Addr: m.Address()}
	}
	return out, nil
}

// Mapping is one parsed maps line.
type Mapping struct {
	start uint64
	end   uint64
	file  *File
}

func (v *Mapping) Range() (snapshot.Address, snapshot.Address, error) {
	return snapshot.Address(v.start), snapshot.Address(v.end), nil
}

func (v *Mapping) File() (snapshot.File, error) {
	if v.file == nil {
		return nil, nil
	}
	return v.file, nil
}
