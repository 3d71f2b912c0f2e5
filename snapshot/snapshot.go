// Package snapshot defines the capability surface a reference scan needs
// from a system image: enumerating tasks, walking their descriptor
// tables, filesystem contexts, address spaces and mount namespaces, and
// comparing object handles by identity.
//
// Every read is fallible. A *FaultError means the read raced with the
// target or hit partial state and the caller should skip the record; any
// value may independently be absent, reported as a nil handle with a nil
// error.
package snapshot

// Snapshot is a read-only image of a running or crashed system.
type Snapshot interface {
	// Tasks enumerates every schedulable task in the image, threads
	// included. A fault here is fatal to a scan.
	Tasks() ([]Task, error)

	// InitialMountNamespace returns the mount namespace the system booted
	// with, used to decide which mounts need a namespace annotation.
	InitialMountNamespace() (MountNamespace, error)
}

// Task is one schedulable process or thread.
type Task interface {
	Handle

	PID() (int, error)
	Comm() (string, error)

	// GroupLeader returns the thread-group leader. A task that is its own
	// leader returns itself.
	GroupLeader() (Task, error)

	// Files returns the task's descriptor table, or nil for tasks without
	// one (kernel threads, tasks that are exiting).
	Files() (FileTable, error)

	// FSContext returns the task's root/cwd pair, or nil.
	FSContext() (FSContext, error)

	// AddressSpace returns the task's memory descriptor, or nil.
	AddressSpace() (AddressSpace, error)

	// MountNamespace returns the namespace the task's mounts live in, or
	// nil when it cannot be determined.
	MountNamespace() (MountNamespace, error)
}

// OpenFile is one occupied slot of a descriptor table.
type OpenFile struct {
	FD   int
	File File
}

// FileTable is a task's descriptor table. Threads of one group usually
// share a single table, discovered by handle identity.
type FileTable interface {
	Handle
	Entries() ([]OpenFile, error)
}

// File is one open file description.
type File interface {
	Handle
	Inode() (Inode, error)

	// Path returns the mount/dentry pair the file was opened through, or
	// nil when the accessor cannot provide one.
	Path() (Path, error)
}

type Inode interface {
	Handle
	SuperBlock() (SuperBlock, error)

	// ReversePath attempts to reconstruct a path for the inode from its
	// known aliases. It returns "" when no alias is available.
	ReversePath() (string, error)
}

// SuperBlock identifies one mounted filesystem instance.
type SuperBlock interface {
	Handle
}

// FSContext is a task's filesystem context: its root and working
// directory.
type FSContext interface {
	Handle
	Root() (Path, error)
	WorkingDir() (Path, error)
}

// Path is a (mount, dentry) pair.
type Path interface {
	Handle
	Mount() (Mount, error)
	Dentry() (Dentry, error)

	// Resolve returns the full textual path as seen from the mount
	// namespace root.
	Resolve() (string, error)
}

type Dentry interface {
	Handle
	Inode() (Inode, error)
}

// AddressSpace is a task's memory descriptor.
type AddressSpace interface {
	Handle

	// ExecFile returns the mapped executable, or nil when the address
	// space has none.
	ExecFile() (File, error)

	Mappings() ([]Mapping, error)
}

// Mapping is one region of an address space.
type Mapping interface {
	Range() (start, end Address, err error)

	// File returns the backing file, or nil for anonymous mappings.
	File() (File, error)
}

// MountNamespace groups the mounts visible to a set of tasks.
type MountNamespace interface {
	Handle

	// ID returns the namespace's numeric identifier, unique within the
	// snapshot and never zero.
	ID() (uint64, error)

	Mounts() ([]Mount, error)
}

// Mount is one entry of a mount table.
type Mount interface {
	Handle
	SuperBlock() (SuperBlock, error)

	// Destination returns the mount point within the owning namespace.
	Destination() (string, error)

	Namespace() (MountNamespace, error)
}
