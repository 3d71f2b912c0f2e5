package snapshot

import "fmt"

// Address identifies one kernel object within a snapshot. Two handles of
// the same kind refer to the same object exactly when their addresses are
// equal; the value itself is opaque to everything above the accessor.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// Kind discriminates which kernel structure a Handle stands for.
type Kind int

const (
	KindTask Kind = iota
	KindFileTable
	KindFile
	KindInode
	KindSuperBlock
	KindPath
	KindDentry
	KindAddressSpace
	KindMount
	KindMountNamespace
	KindFSContext
)

var kindNames = [...]string{
	KindTask:           "struct task_struct",
	KindFileTable:      "struct files_struct",
	KindFile:           "struct file",
	KindInode:          "struct inode",
	KindSuperBlock:     "struct super_block",
	KindPath:           "struct path",
	KindDentry:         "struct dentry",
	KindAddressSpace:   "struct mm_struct",
	KindMount:          "struct mount",
	KindMountNamespace: "struct mnt_namespace",
	KindFSContext:      "struct fs_struct",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Handle is a reference to one object in the snapshot.
type Handle interface {
	Address() Address
	Kind() Kind
}

// Same reports whether two handles identify the same object. Two nil
// handles are the same; a nil and a non-nil handle never are.
func Same(a, b Handle) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.Address() == b.Address()
}

// Describe renders a handle the way a kernel debugger prints a typed
// pointer, e.g. "(struct file *)0xffff8880031e9c00".
func Describe(h Handle) string {
	return fmt.Sprintf("(%s *)0x%x", h.Kind(), uint64(h.Address()))
}

type rawHandle struct {
	addr Address
	kind Kind
}

func (h rawHandle) Address() Address { return h.addr }
func (h rawHandle) Kind() Kind       { return h.kind }

// RawInode returns an inode handle for a known object address. Such a
// handle only supports identity comparison.
func RawInode(addr Address) Handle {
	return rawHandle{addr: addr, kind: KindInode}
}

// RawSuperBlock returns a super block handle for a known object address.
func RawSuperBlock(addr Address) Handle {
	return rawHandle{addr: addr, kind: KindSuperBlock}
}
