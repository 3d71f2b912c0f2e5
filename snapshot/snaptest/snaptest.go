// Package snaptest provides hand-built in-memory snapshot images. Every
// record is a plain struct with exported fields, so a test (or the demo
// mode of the CLI) can lay out tasks, descriptor tables and mount
// namespaces directly and inject read faults on individual fields.
//
// Addresses are chosen by the caller. Nil struct pointers read back as
// absent values; the XxxFault toggles make the corresponding read return
// a *snapshot.FaultError instead.
package snaptest

import (
	"fsrefs/snapshot"
)

func fault(op string, h snapshot.Handle) error {
	return &snapshot.FaultError{Op: op, Addr: h.Address()}
}

// Snapshot is a fake system image.
type Snapshot struct {
	TaskList   []*Task
	InitNS     *Namespace
	TasksFault bool
}

func (s *Snapshot) Tasks() ([]snapshot.Task, error) {
	if s.TasksFault {
		return nil, &snapshot.FaultError{Op: "task list"}
	}
	out := make([]snapshot.Task, 0, len(s.TaskList))
	for _, t := range s.TaskList {
		out = append(out, t)
	}
	return out, nil
}

func (s *Snapshot) InitialMountNamespace() (snapshot.MountNamespace, error) {
	if s.InitNS == nil {
		return nil, nil
	}
	return s.InitNS, nil
}

// Task is a fake process or thread. Leader == nil means the task is its
// own thread-group leader.
type Task struct {
	Addr snapshot.Address
	ID   int
	Name string

	Leader *Task
	FT     *FileTable
	FS     *FSContext
	MM     *AddressSpace
	NS     *Namespace

	CommFault  bool
	FilesFault bool
	FSFault    bool
	MMFault    bool
	NSFault    bool
}

func (t *Task) Address() snapshot.Address { return t.Addr }
func (t *Task) Kind() snapshot.Kind       { return snapshot.KindTask }

func (t *Task) PID() (int, error) { return t.ID, nil }

func (t *Task) Comm() (string, error) {
	if t.CommFault {
		return "", fault("task.comm", t)
	}
	return t.Name, nil
}

func (t *Task) GroupLeader() (snapshot.Task, error) {
	if t.Leader == nil {
		return t, nil
	}
	return t.Leader, nil
}

func (t *Task) Files() (snapshot.FileTable, error) {
	if t.FilesFault {
		return nil, fault("task.files", t)
	}
	if t.FT == nil {
		return nil, nil
	}
	return t.FT, nil
}

func (t *Task) FSContext() (snapshot.FSContext, error) {
	if t.FSFault {
		return nil, fault("task.fs", t)
	}
	if t.FS == nil {
		return nil, nil
	}
	return t.FS, nil
}

func (t *Task) AddressSpace() (snapshot.AddressSpace, error) {
	if t.MMFault {
		return nil, fault("task.mm", t)
	}
	if t.MM == nil {
		return nil, nil
	}
	return t.MM, nil
}

func (t *Task) MountNamespace() (snapshot.MountNamespace, error) {
	if t.NSFault {
		return nil, fault("task.nsproxy.mnt_ns", t)
	}
	if t.NS == nil {
		return nil, nil
	}
	return t.NS, nil
}

// FDEntry is one occupied descriptor slot of a fake table.
type FDEntry struct {
	FD   int
	File *File
}

// FileTable is a fake descriptor table.
type FileTable struct {
	Addr  snapshot.Address
	Slots []FDEntry

	EntriesFault bool
}

func (ft *FileTable) Address() snapshot.Address { return ft.Addr }
func (ft *FileTable) Kind() snapshot.Kind       { return snapshot.KindFileTable }

func (ft *FileTable) Entries() ([]snapshot.OpenFile, error) {
	if ft.EntriesFault {
		return nil, fault("fd table", ft)
	}
	out := make([]snapshot.OpenFile, 0, len(ft.Slots))
	for _, s := range ft.Slots {
		out = append(out, snapshot.OpenFile{FD: s.FD, File: s.File})
	}
	return out, nil
}

// File is a fake open file description.
type File struct {
	Addr snapshot.Address
	Ino  *Inode
	P    *Path

	InoFault  bool
	PathFault bool
}

func (f *File) Address() snapshot.Address { return f.Addr }
func (f *File) Kind() snapshot.Kind       { return snapshot.KindFile }

func (f *File) Inode() (snapshot.Inode, error) {
	if f.InoFault {
		return nil, fault("file.f_inode", f)
	}
	if f.Ino == nil {
		return nil, nil
	}
	return f.Ino, nil
}

func (f *File) Path() (snapshot.Path, error) {
	if f.PathFault {
		return nil, fault("file.f_path", f)
	}
	if f.P == nil {
		return nil, nil
	}
	return f.P, nil
}

// Inode is a fake inode. Alias is the reverse-resolved path, "" when no
// dentry alias is known.
type Inode struct {
	Addr  snapshot.Address
	SB    *SuperBlock
	Alias string

	SBFault    bool
	AliasFault bool
}

func (i *Inode) Address() snapshot.Address { return i.Addr }
func (i *Inode) Kind() snapshot.Kind       { return snapshot.KindInode }

func (i *Inode) SuperBlock() (snapshot.SuperBlock, error) {
	if i.SBFault {
		return nil, fault("inode.i_sb", i)
	}
	if i.SB == nil {
		return nil, nil
	}
	return i.SB, nil
}

func (i *Inode) ReversePath() (string, error) {
	if i.AliasFault {
		return "", fault("inode path", i)
	}
	return i.Alias, nil
}

// SuperBlock is a fake filesystem instance.
type SuperBlock struct {
	Addr snapshot.Address
}

func (s *SuperBlock) Address() snapshot.Address { return s.Addr }
func (s *SuperBlock) Kind() snapshot.Kind       { return snapshot.KindSuperBlock }

// FSContext is a fake root/cwd pair.
type FSContext struct {
	Addr snapshot.Address
	Rt   *Path
	Cwd  *Path

	RootFault bool
	CwdFault  bool
}

func (c *FSContext) Address() snapshot.Address { return c.Addr }
func (c *FSContext) Kind() snapshot.Kind       { return snapshot.KindFSContext }

func (c *FSContext) Root() (snapshot.Path, error) {
	if c.RootFault {
		return nil, fault("fs.root", c)
	}
	if c.Rt == nil {
		return nil, nil
	}
	return c.Rt, nil
}

func (c *FSContext) WorkingDir() (snapshot.Path, error) {
	if c.CwdFault {
		return nil, fault("fs.pwd", c)
	}
	if c.Cwd == nil {
		return nil, nil
	}
	return c.Cwd, nil
}

// Path is a fake (mount, dentry) pair. Str is what Resolve returns.
type Path struct {
	Addr snapshot.Address
	Mnt  *Mount
	Dent *Dentry
	Str  string

	MntFault     bool
	DentFault    bool
	ResolveFault bool
}

func (p *Path) Address() snapshot.Address { return p.Addr }
func (p *Path) Kind() snapshot.Kind       { return snapshot.KindPath }

func (p *Path) Mount() (snapshot.Mount, error) {
	if p.MntFault {
		return nil, fault("path.mnt", p)
	}
	if p.Mnt == nil {
		return nil, nil
	}
	return p.Mnt, nil
}

func (p *Path) Dentry() (snapshot.Dentry, error) {
	if p.DentFault {
		return nil, fault("path.dentry", p)
	}
	if p.Dent == nil {
		return nil, nil
	}
	return p.Dent, nil
}

func (p *Path) Resolve() (string, error) {
	if p.ResolveFault {
		return "", fault("d_path", p)
	}
	return p.Str, nil
}

// Dentry is a fake directory entry.
type Dentry struct {
	Addr snapshot.Address
	Ino  *Inode

	InoFault bool
}

func (d *Dentry) Address() snapshot.Address { return d.Addr }
func (d *Dentry) Kind() snapshot.Kind       { return snapshot.KindDentry }

func (d *Dentry) Inode() (snapshot.Inode, error) {
	if d.InoFault {
		return nil, fault("dentry.d_inode", d)
	}
	if d.Ino == nil {
		return nil, nil
	}
	return d.Ino, nil
}

// AddressSpace is a fake memory descriptor.
type AddressSpace struct {
	Addr snapshot.Address
	Exe  *File
	Maps []*Mapping

	ExeFault  bool
	MapsFault bool
}

func (m *AddressSpace) Address() snapshot.Address { return m.Addr }
func (m *AddressSpace) Kind() snapshot.Kind       { return snapshot.KindAddressSpace }

func (m *AddressSpace) ExecFile() (snapshot.File, error) {
	if m.ExeFault {
		return nil, fault("mm.exe_file", m)
	}
	if m.Exe == nil {
		return nil, nil
	}
	return m.Exe, nil
}

func (m *AddressSpace) Mappings() ([]snapshot.Mapping, error) {
	if m.MapsFault {
		return nil, fault("vma list", m)
	}
	out := make([]snapshot.Mapping, 0, len(m.Maps))
	for _, vma := range m.Maps {
		out = append(out, vma)
	}
	return out, nil
}

// Mapping is a fake VMA.
type Mapping struct {
	Start snapshot.Address
	End   snapshot.Address
	F     *File

	RangeFault bool
	FileFault  bool
}

func (v *Mapping) Range() (snapshot.Address, snapshot.Address, error) {
	if v.RangeFault {
		return 0, 0, &snapshot.FaultError{Op: "vma range"}
	}
	return v.Start, v.End, nil
}

func (v *Mapping) File() (snapshot.File, error) {
	if v.FileFault {
		return nil, &snapshot.FaultError{Op: "vma.vm_file", Addr: v.Start}
	}
	if v.F == nil {
		return nil, nil
	}
	return v.F, nil
}

// Namespace is a fake mount namespace. MountsCalls counts how many times
// the mount table was enumerated, so tests can assert dedup behaviour.
type Namespace struct {
	Addr      snapshot.Address
	Inum      uint64
	MountList []*Mount

	MountsFault bool
	IDFault     bool
	MountsCalls int
}

func (n *Namespace) Address() snapshot.Address { return n.Addr }
func (n *Namespace) Kind() snapshot.Kind       { return snapshot.KindMountNamespace }

func (n *Namespace) ID() (uint64, error) {
	if n.IDFault {
		return 0, fault("mnt_ns.ns.inum", n)
	}
	return n.Inum, nil
}

func (n *Namespace) Mounts() ([]snapshot.Mount, error) {
	n.MountsCalls++
	if n.MountsFault {
		return nil, fault("mount table", n)
	}
	out := make([]snapshot.Mount, 0, len(n.MountList))
	for _, m := range n.MountList {
		out = append(out, m)
	}
	return out, nil
}

// Mount is a fake mount table entry.
type Mount struct {
	Addr snapshot.Address
	SB   *SuperBlock
	Dst  string
	NS   *Namespace

	SBFault  bool
	DstFault bool
}

func (m *Mount) Address() snapshot.Address { return m.Addr }
func (m *Mount) Kind() snapshot.Kind       { return snapshot.KindMount }

func (m *Mount) SuperBlock() (snapshot.SuperBlock, error) {
	if m.SBFault {
		return nil, fault("mount.mnt.mnt_sb", m)
	}
	if m.SB == nil {
		return nil, nil
	}
	return m.SB, nil
}

func (m *Mount) Destination() (string, error) {
	if m.DstFault {
		return "", fault("mount destination", m)
	}
	return m.Dst, nil
}

func (m *Mount) Namespace() (snapshot.MountNamespace, error) {
	if m.NS == nil {
		return nil, nil
	}
	return m.NS, nil
}
