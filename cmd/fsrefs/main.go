// fsrefs finds what is referencing a filesystem object: open file
// descriptors, process roots and working directories, memory mappings,
// and mount table entries across all mount namespaces.
//
// Exactly one target must be selected, either by path (--inode,
// --super-block) or by object address (--inode-pointer,
// --super-block-pointer). Results stream to stdout; warnings about
// records that could not be read go to stderr.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"fsrefs/refs"
	"fsrefs/snapshot"
)

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	inodePath := flag.String("inode", "", "find references to the inode at `PATH`")
	inodePtr := flag.String("inode-pointer", "", "find references to the struct inode at hex `ADDRESS`")
	sbPath := flag.String("super-block", "", "find references to the filesystem (super block) containing `PATH`")
	sbPtr := flag.String("super-block-pointer", "", "find references to the struct super_block at hex `ADDRESS`")
	deref := flag.Bool("L", false, "if the given path is a symbolic link, follow it")
	demo := flag.Bool("demo", false, "scan a built-in demo snapshot instead of the live system")
	var check, noCheck stringList
	flag.Var(&check, "check", "only check the given `source` (mounts, tasks); repeatable")
	flag.Var(&noCheck, "no-check", "don't check the given `source` (mounts, tasks); repeatable")
	flag.Parse()

	opts, err := refs.SelectChecks(check, noCheck)
	if err != nil {
		fatal(err)
	}

	selected := 0
	for _, v := range []string{*inodePath, *inodePtr, *sbPath, *sbPtr} {
		if v != "" {
			selected++
		}
	}
	if selected != 1 {
		fatal(fmt.Errorf("exactly one of --inode, --inode-pointer, --super-block or --super-block-pointer is required"))
	}
	if *demo && (*inodePath != "" || *sbPath != "") {
		fatal(fmt.Errorf("the demo snapshot has no live paths; select the target by pointer"))
	}

	var snap snapshot.Snapshot
	if *demo {
		snap = demoImage()
	} else {
		snap, err = openLive()
		if err != nil {
			fatal(err)
		}
	}

	var target snapshot.Handle
	switch {
	case *inodePtr != "":
		addr, err := parseAddr(*inodePtr)
		if err != nil {
			fatal(err)
		}
		target = snapshot.RawInode(addr)
	case *sbPtr != "":
		addr, err := parseAddr(*sbPtr)
		if err != nil {
			fatal(err)
		}
		target = snapshot.RawSuperBlock(addr)
	case *inodePath != "":
		target, err = resolvePathTarget(*inodePath, *deref, false)
		if err != nil {
			fatal(err)
		}
	case *sbPath != "":
		target, err = resolvePathTarget(*sbPath, *deref, true)
		if err != nil {
			fatal(err)
		}
	}

	rep := refs.NewReporter(os.Stdout, os.Stderr)
	var m refs.Matcher
	if *sbPath != "" || *sbPtr != "" {
		m = refs.NewSuperBlockMatcher(target, rep)
	} else {
		m = refs.NewInodeMatcher(target)
	}

	eng := refs.NewEngine(snap, rep)
	if err := eng.Run(m, opts); err != nil {
		fmt.Fprintln(os.Stderr, "fsrefs:", err)
		os.Exit(1)
	}
}

func parseAddr(s string) (snapshot.Address, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return snapshot.Address(v), nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fsrefs:", err)
	os.Exit(2)
}
