package refs_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsrefs/refs"
	"fsrefs/snapshot"
	"fsrefs/snapshot/snaptest"
)

// runScan executes one scan and returns the result and diagnostic
// streams.
func runScan(t *testing.T, img *snaptest.Snapshot, mk func(*refs.Reporter) refs.Matcher, opts refs.Options) (string, string, error) {
	t.Helper()
	var out, diag bytes.Buffer
	rep := refs.NewReporter(&out, &diag)
	eng := refs.NewEngine(img, rep)
	err := eng.Run(mk(rep), opts)
	return out.String(), diag.String(), err
}

func inodeMatcher(target snapshot.Handle) func(*refs.Reporter) refs.Matcher {
	return func(*refs.Reporter) refs.Matcher { return refs.NewInodeMatcher(target) }
}

func sbMatcher(target snapshot.Handle) func(*refs.Reporter) refs.Matcher {
	return func(rep *refs.Reporter) refs.Matcher { return refs.NewSuperBlockMatcher(target, rep) }
}

func lines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

var tasksOnly = refs.Options{CheckTasks: true}
var allChecks = refs.Options{CheckMounts: true, CheckTasks: true}

func TestFDReferenceCountMatchesDescriptors(t *testing.T) {
	target := &snaptest.Inode{Addr: 0xaaaa}
	other := &snaptest.Inode{Addr: 0xbbbb}
	fA := &snaptest.File{Addr: 0xf1, Ino: target}
	fB := &snaptest.File{Addr: 0xf2, Ino: target}
	fOther := &snaptest.File{Addr: 0xf3, Ino: other}

	srvTable := &snaptest.FileTable{
		Addr:  0x200,
		Slots: []snaptest.FDEntry{{FD: 1, File: fB}, {FD: 2, File: fOther}},
	}
	srv := &snaptest.Task{Addr: 0x20, ID: 20, Name: "srv", FT: srvTable}
	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{
		{Addr: 0x10, ID: 10, Name: "initd", FT: &snaptest.FileTable{
			Addr:  0x100,
			Slots: []snaptest.FDEntry{{FD: 3, File: fA}},
		}},
		srv,
		// Two extra threads sharing srv's table must not inflate the count.
		{Addr: 0x21, ID: 21, Name: "srv", Leader: srv, FT: srvTable},
		{Addr: 0x22, ID: 22, Name: "srv", Leader: srv, FT: srvTable},
	}}

	out, diag, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Empty(t, diag)
	assert.Equal(t, []string{
		"pid 10 (initd) fd 3 (struct file *)0xf1",
		"pid 20 (srv) fd 1 (struct file *)0xf2",
	}, lines(out))
}

func TestThreadWithPrivateTableIsScanned(t *testing.T) {
	target := &snaptest.Inode{Addr: 0xaaaa}
	f := &snaptest.File{Addr: 0xf1, Ino: target}

	shared := &snaptest.FileTable{Addr: 0x100, Slots: []snaptest.FDEntry{{FD: 5, File: f}}}
	leader := &snaptest.Task{Addr: 0x10, ID: 10, Name: "main", FT: shared}
	// One thread shares the table, one unshared it.
	private := &snaptest.FileTable{Addr: 0x300, Slots: []snaptest.FDEntry{{FD: 7, File: f}}}
	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{
		leader,
		{Addr: 0x11, ID: 11, Name: "main", Leader: leader, FT: shared},
		{Addr: 0x12, ID: 12, Name: "main", Leader: leader, FT: private},
	}}

	out, _, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pid 10 (main) fd 5 (struct file *)0xf1",
		"pid 12 (main) fd 7 (struct file *)0xf1",
	}, lines(out))
}

func TestRootCwdAndExeMatches(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	target := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	exe := &snaptest.File{Addr: 0xf9, Ino: target}

	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{{
		Addr: 0x10, ID: 10, Name: "initd",
		FS: &snaptest.FSContext{
			Addr: 0x400,
			Rt: &snaptest.Path{
				Addr: 0x410,
				Dent: &snaptest.Dentry{Addr: 0x411, Ino: target},
			},
			Cwd: &snaptest.Path{
				Addr: 0x420,
				Dent: &snaptest.Dentry{Addr: 0x421, Ino: target},
			},
		},
		MM: &snaptest.AddressSpace{Addr: 0x500, Exe: exe},
	}}}

	out, _, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pid 10 (initd) root (struct path *)0x410",
		"pid 10 (initd) cwd (struct path *)0x420",
		"pid 10 (initd) exe (struct file *)0xf9",
	}, lines(out))
}

func TestNamespaceScannedOncePerSnapshot(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	otherSB := &snaptest.SuperBlock{Addr: 0x2000}

	ns1 := &snaptest.Namespace{Addr: 0x9000, Inum: 4026531840}
	ns1.MountList = []*snaptest.Mount{{Addr: 0x9010, SB: otherSB, Dst: "/", NS: ns1}}
	ns2 := &snaptest.Namespace{Addr: 0x9100, Inum: 4026532100}
	ns2.MountList = []*snaptest.Mount{{Addr: 0x9110, SB: sb, Dst: "/mnt/data", NS: ns2}}

	img := &snaptest.Snapshot{
		TaskList: []*snaptest.Task{
			{Addr: 0x10, ID: 10, Name: "a", NS: ns1},
			{Addr: 0x11, ID: 11, Name: "b", NS: ns1},
			{Addr: 0x12, ID: 12, Name: "c", NS: ns1},
			{Addr: 0x20, ID: 20, Name: "d", NS: ns2},
			{Addr: 0x21, ID: 21, Name: "e", NS: ns2},
		},
		InitNS: ns1,
	}

	out, diag, err := runScan(t, img, sbMatcher(sb), allChecks)
	require.NoError(t, err)
	assert.Empty(t, diag)

	// ns1 has zero matches but is still only walked once.
	assert.Equal(t, 1, ns1.MountsCalls)
	assert.Equal(t, 1, ns2.MountsCalls)
	assert.Equal(t, []string{
		"mount /mnt/data (mount namespace 4026532100) (struct mount *)0x9110",
	}, lines(out))
}

func TestMountCheckSkippedForInodeTargets(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	target := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	ns := &snaptest.Namespace{Addr: 0x9000, Inum: 4026531840}
	ns.MountList = []*snaptest.Mount{{Addr: 0x9010, SB: sb, Dst: "/data", NS: ns}}

	img := &snaptest.Snapshot{
		TaskList: []*snaptest.Task{{Addr: 0x10, ID: 10, Name: "a", NS: ns}},
		InitNS:   ns,
	}

	out, _, err := runScan(t, img, inodeMatcher(target), allChecks)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, ns.MountsCalls)
}

func TestMappingFaultIsIsolated(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	target := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	f := &snaptest.File{Addr: 0xf1, Ino: target}

	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{{
		Addr: 0x10, ID: 5, Name: "mapper",
		MM: &snaptest.AddressSpace{
			Addr: 0x500,
			Maps: []*snaptest.Mapping{
				{Start: 0x1000, End: 0x2000, F: f},
				{Start: 0x2000, End: 0x3000, FileFault: true},
				{Start: 0x3000, End: 0x4000, F: f},
			},
		},
	}}}

	out, diag, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pid 5 (mapper) vma 0x1000-0x2000 (struct file *)0xf1",
		"pid 5 (mapper) vma 0x3000-0x4000 (struct file *)0xf1",
	}, lines(out))
	require.Len(t, lines(diag), 1)
	assert.Equal(t,
		"warning: fault while checking mapping 0x2000-0x3000 of pid 5 (mapper), possibly due to race; results may be incomplete",
		lines(diag)[0])
}

func TestTaskFaultSkipsOnlyThatTask(t *testing.T) {
	target := &snaptest.Inode{Addr: 0xaaaa}
	f := &snaptest.File{Addr: 0xf1, Ino: target}

	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{
		{Addr: 0x10, ID: 7, Name: "bad", FilesFault: true},
		{Addr: 0x20, ID: 8, Name: "good", FT: &snaptest.FileTable{
			Addr:  0x200,
			Slots: []snaptest.FDEntry{{FD: 0, File: f}},
		}},
	}}

	out, diag, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{"pid 8 (good) fd 0 (struct file *)0xf1"}, lines(out))
	require.Len(t, lines(diag), 1)
	assert.Contains(t, lines(diag)[0], "checking pid 7 (bad)")
}

func TestResolutionFaultKeepsMatch(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	ino := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	resolved := &snaptest.File{
		Addr: 0xf1, Ino: ino,
		P: &snaptest.Path{Addr: 0xf110, Str: "/data/app.log"},
	}
	unresolved := &snaptest.File{
		Addr: 0xf2, Ino: ino,
		P: &snaptest.Path{Addr: 0xf210, ResolveFault: true},
	}

	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{{
		Addr: 0x10, ID: 10, Name: "app",
		FT: &snaptest.FileTable{
			Addr: 0x100,
			Slots: []snaptest.FDEntry{
				{FD: 3, File: resolved},
				{FD: 4, File: unresolved},
			},
		},
	}}}

	out, diag, err := runScan(t, img, sbMatcher(sb), tasksOnly)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pid 10 (app) fd 3 (struct file *)0xf1 /data/app.log",
		"pid 10 (app) fd 4 (struct file *)0xf2",
	}, lines(out))
	require.Len(t, lines(diag), 1)
	assert.Contains(t, lines(diag)[0], "resolving path of (struct file *)0xf2")
}

func TestScanIsIdempotent(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	target := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	f := &snaptest.File{Addr: 0xf1, Ino: target}
	ns := &snaptest.Namespace{Addr: 0x9000, Inum: 4026531840}
	ns.MountList = []*snaptest.Mount{{Addr: 0x9010, SB: sb, Dst: "/data", NS: ns}}

	img := &snaptest.Snapshot{
		TaskList: []*snaptest.Task{{
			Addr: 0x10, ID: 10, Name: "app", NS: ns,
			FT: &snaptest.FileTable{Addr: 0x100, Slots: []snaptest.FDEntry{{FD: 3, File: f}}},
		}},
		InitNS: ns,
	}

	first, _, err := runScan(t, img, sbMatcher(sb), allChecks)
	require.NoError(t, err)
	second, _, err := runScan(t, img, sbMatcher(sb), allChecks)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestEndToEndInodeTarget(t *testing.T) {
	target := &snaptest.Inode{Addr: 0xaaaa}
	f := &snaptest.File{Addr: 0xf1, Ino: target}

	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{
		{
			Addr: 0x10, ID: 10, Name: "initd",
			FT: &snaptest.FileTable{Addr: 0x100, Slots: []snaptest.FDEntry{{FD: 3, File: f}}},
			FS: &snaptest.FSContext{
				Addr: 0x400,
				Cwd: &snaptest.Path{
					Addr: 0x420,
					Dent: &snaptest.Dentry{Addr: 0x421, Ino: target},
				},
			},
		},
		{
			Addr: 0x20, ID: 11, Name: "unrelated",
			FT: &snaptest.FileTable{Addr: 0x200, Slots: []snaptest.FDEntry{
				{FD: 0, File: &snaptest.File{Addr: 0xf2, Ino: &snaptest.Inode{Addr: 0xbbbb}}},
			}},
		},
	}}

	out, diag, err := runScan(t, img, inodeMatcher(target), allChecks)
	require.NoError(t, err)
	assert.Empty(t, diag)
	assert.Equal(t, []string{
		"pid 10 (initd) fd 3 (struct file *)0xf1",
		"pid 10 (initd) cwd (struct path *)0x420",
	}, lines(out))
}

func TestEndToEndSuperBlockTarget(t *testing.T) {
	sb := &snaptest.SuperBlock{Addr: 0x1000}

	ns1 := &snaptest.Namespace{Addr: 0x9000, Inum: 4026531840}
	ns1.MountList = []*snaptest.Mount{{Addr: 0x9010, SB: sb, Dst: "/data", NS: ns1}}
	ns2 := &snaptest.Namespace{Addr: 0x9100, Inum: 4026532100}
	ns2.MountList = []*snaptest.Mount{{Addr: 0x9110, SB: sb, Dst: "/mnt/data", NS: ns2}}

	img := &snaptest.Snapshot{
		TaskList: []*snaptest.Task{
			{Addr: 0x10, ID: 1, Name: "init", NS: ns1},
			{Addr: 0x20, ID: 42, Name: "worker", NS: ns2},
		},
		InitNS: ns1,
	}

	out, diag, err := runScan(t, img, sbMatcher(sb), allChecks)
	require.NoError(t, err)
	assert.Empty(t, diag)
	assert.Equal(t, []string{
		"mount /data (struct mount *)0x9010",
		"mount /mnt/data (mount namespace 4026532100) (struct mount *)0x9110",
	}, lines(out))
}

func TestTaskIterationFaultIsFatal(t *testing.T) {
	img := &snaptest.Snapshot{TasksFault: true}

	out, diag, err := runScan(t, img, inodeMatcher(&snaptest.Inode{Addr: 0xaaaa}), tasksOnly)
	require.Error(t, err)
	assert.True(t, snapshot.IsFault(err))
	assert.Empty(t, out)
	require.Len(t, lines(diag), 1)
	assert.Contains(t, lines(diag)[0], "iterating tasks")
}

func TestAbsentTablesAreSkipped(t *testing.T) {
	target := &snaptest.Inode{Addr: 0xaaaa}
	img := &snaptest.Snapshot{TaskList: []*snaptest.Task{
		{Addr: 0x10, ID: 2, Name: "kthreadd"}, // no files, fs or mm
	}}

	out, diag, err := runScan(t, img, inodeMatcher(target), tasksOnly)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, diag)
}
