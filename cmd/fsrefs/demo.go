package main

import (
	"fsrefs/snapshot"
	"fsrefs/snapshot/snaptest"
)

// demoImage builds a small fixed snapshot for trying the tool without a
// live system. Interesting targets:
//
//	--inode-pointer 0xaaaa        a log file held open and mapped
//	--super-block-pointer 0x1000  a filesystem mounted in two namespaces
func demoImage() snapshot.Snapshot {
	sb := &snaptest.SuperBlock{Addr: 0x1000}
	logInode := &snaptest.Inode{Addr: 0xaaaa, SB: sb}
	logFile := &snaptest.File{
		Addr: 0xf100,
		Ino:  logInode,
		P:    &snaptest.Path{Addr: 0xf110, Str: "/data/app.log"},
	}

	initNS := &snaptest.Namespace{Addr: 0x9000, Inum: 4026531840}
	dataMount := &snaptest.Mount{Addr: 0x9010, SB: sb, Dst: "/data", NS: initNS}
	initNS.MountList = []*snaptest.Mount{dataMount}
	containerNS := &snaptest.Namespace{Addr: 0x9100, Inum: 4026532100}
	containerNS.MountList = []*snaptest.Mount{
		{Addr: 0x9110, SB: sb, Dst: "/mnt/data", NS: containerNS},
	}

	dataDir := &snaptest.Inode{Addr: 0xab00, SB: sb}
	initd := &snaptest.Task{
		Addr: 0x7000,
		ID:   1,
		Name: "initd",
		FT: &snaptest.FileTable{
			Addr:  0x7100,
			Slots: []snaptest.FDEntry{{FD: 3, File: logFile}},
		},
		FS: &snaptest.FSContext{
			Addr: 0x7200,
			Cwd: &snaptest.Path{
				Addr: 0x7300,
				Mnt:  dataMount,
				Dent: &snaptest.Dentry{Addr: 0x7400, Ino: dataDir},
				Str:  "/data",
			},
		},
		NS: initNS,
	}

	worker := &snaptest.Task{
		Addr: 0x8000,
		ID:   42,
		Name: "worker",
		MM: &snaptest.AddressSpace{
			Addr: 0x8100,
			Maps: []*snaptest.Mapping{
				{Start: 0x400000, End: 0x500000, F: logFile},
			},
		},
		NS: containerNS,
	}

	return &snaptest.Snapshot{
		TaskList: []*snaptest.Task{initd, worker},
		InitNS:   initNS,
	}
}
