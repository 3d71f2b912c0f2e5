//go:build linux

package snapshot_proc

import (
	"os"

	"fsrefs/snapshot"
)

// File is one open file description, identified by the device and inode
// number of what it opens. link is the procfs symlink that resolves to
// the file's path.
type File struct {
	dev  uint64
	ino  uint64
	link string
}

func (f *File) Address() snapshot.Address { return objAddr(f.dev, f.ino) }
func (f *File) Kind() snapshot.Kind       { return snapshot.KindFile }

func (f *File) Inode() (snapshot.Inode, error) {
	return &Inode{dev: f.dev, ino: f.ino}, nil
}

func (f *File) Path() (snapshot.Path, error) {
	return &Path{dev: f.dev, ino: f.ino, link: f.link}, nil
}

// Inode is a filesystem object identified by (device, inode number).
type Inode struct {
	dev uint64
	ino uint64
}

func (i *Inode) Address() snapshot.Address { return objAddr(i.dev, i.ino) }
func (i *Inode) Kind() snapshot.Kind       { return snapshot.KindInode }

func (i *Inode) SuperBlock() (snapshot.SuperBlock, error) {
	return &SuperBlock{dev: i.dev}, nil
}

// ReversePath always reports no alias: procfs has no inode-to-path
// mapping.
func (i *Inode) ReversePath() (string, error) {
	return "", nil
}

// SuperBlock is a filesystem instance identified by its device number.
type SuperBlock struct {
	dev uint64
}

func (s *SuperBlock) Address() snapshot.Address { return snapshot.Address(s.dev) }
func (s *SuperBlock) Kind() snapshot.Kind       { return snapshot.KindSuperBlock }

// Path is a (mount, dentry) pair backed by a procfs symlink.
type Path struct {
	dev  uint64
	ino  uint64
	link string
}

func (p *Path) Address() snapshot.Address { return objAddr(p.dev, p.ino) }
func (p *Path) Kind() snapshot.Kind       { return snapshot.KindPath }

func (p *Path) Mount() (snapshot.Mount, error) {
	return &Mount{dev: p.dev}, nil
}

func (p *Path) Dentry() (snapshot.Dentry, error) {
	return &Dentry{dev: p.dev, ino: p.ino}, nil
}

// Resolve follows the procfs symlink. Reading it may need more privilege
// than statting it (map_files in particular); that reads as absence, not
// as a fault.
func (p *Path) Resolve() (string, error) {
	target, err := os.Readlink(p.link)
	if err != nil {
		if absent(err) {
			return "", nil
		}
		return "", &snapshot.FaultError{Op: p.link}
	}
	return target, nil
}

// Dentry is a directory entry identified like its inode.
type Dentry struct {
	dev uint64
	ino uint64
}

func (d *Dentry) Address() snapshot.Address { return objAddr(d.dev, d.ino) }
func (d *Dentry) Kind() snapshot.Kind       { return snapshot.KindDentry }

func (d *Dentry) Inode() (snapshot.Inode, error) {
	return &Inode{dev: d.dev, ino: d.ino}, nil
}

// Mount is one mountinfo entry. Mounts synthesized from a bare path
// carry only the device.
type Mount struct {
	id  int
	dev uint64
	dst string
	ns  *Namespace
}

func (m *Mount) Address() snapshot.Address { return objAddr(m.dev, uint64(m.id)) }
func (m *Mount) Kind() snapshot.Kind       { return snapshot.KindMount }

func (m *Mount) SuperBlock() (snapshot.SuperBlock, error) {
	return &SuperBlock{dev: m.dev}, nil
}

func (m *Mount) Destination() (string, error) {
	return m.dst, nil
}

func (m *Mount) Namespace() (snapshot.MountNamespace, error) {
	if m.ns == nil {
		return nil, nil
	}
	return m.ns, nil
}

// Namespace is a mount namespace, identified by its inum. task is any
// task inside it, used to read the namespace's mountinfo.
type Namespace struct {
	inum uint64
	task *Task
}

func (n *Namespace) Address() snapshot.Address { return snapshot.Address(n.inum) }
func (n *Namespace) Kind() snapshot.Kind       { return snapshot.KindMountNamespace }

func (n *Namespace) ID() (uint64, error) { return n.inum, nil }

func (n *Namespace) Mounts() ([]snapshot.Mount, error) {
	data, err := os.ReadFile(n.task.dir() + "/mountinfo")
	if err != nil {
		if absent(err) {
			return nil, nil
		}
		return nil, &snapshot.FaultError{Op: "mount table", Addr: n.Address()}
	}
	var out []snapshot.Mount
	for _, line := range splitLines(string(data)) {
		ent, ok := parseMountInfoLine(line)
		if !ok {
			continue
		}
		out = append(out, &Mount{id: ent.id, dev: ent.dev, dst: ent.mountPoint, ns: n})
	}
	return out, nil
}
