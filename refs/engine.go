// Package refs implements the reference-finder scan: given an inode or
// super block handle, it walks every task in a snapshot and reports each
// open file, root/cwd, memory mapping and mount table entry that refers
// to it.
package refs

import (
	"fmt"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"

	"fsrefs/snapshot"
)

// Engine drives reference scans over one snapshot.
type Engine struct {
	snap snapshot.Snapshot
	rep  *Reporter
	log  *logger.Logger
}

func NewEngine(snap snapshot.Snapshot, rep *Reporter) *Engine {
	return &Engine{
		snap: snap,
		rep:  rep,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "refs-engine")),
	}
}

// Run scans the whole snapshot and emits one result line per reference to
// the matcher's target. All deduplication state is local to the call, so
// repeated or concurrent runs are independent.
//
// Faults are contained at the smallest enclosing record and reported as
// warnings; only a fault on the top-level task iteration is fatal and
// returned.
func (e *Engine) Run(m Matcher, opts Options) error {
	sc := &scan{
		engine:    e,
		matcher:   m,
		opts:      opts,
		checkedNS: map[snapshot.Address]bool{0: true}, // 0 is the "no namespace" sentinel
	}
	// Mount tables only ever match at super block granularity.
	sc.sbMatcher, _ = m.(*SuperBlockMatcher)
	sc.checkMounts = opts.CheckMounts && sc.sbMatcher != nil
	return sc.run()
}

// scan holds the working state of one Run invocation.
type scan struct {
	engine  *Engine
	matcher Matcher
	opts    Options

	sbMatcher   *SuperBlockMatcher
	checkMounts bool
	initNS      snapshot.MountNamespace
	checkedNS   map[snapshot.Address]bool
	matches     int
}

func (sc *scan) run() error {
	e := sc.engine

	if sc.checkMounts {
		ns, err := e.snap.InitialMountNamespace()
		if err != nil {
			if !snapshot.IsFault(err) {
				return err
			}
			// Without the initial namespace every mount line gets an
			// annotation, which is still correct.
			e.rep.Warnf("reading initial mount namespace")
		}
		sc.initNS = ns
	}

	tasks, err := e.snap.Tasks()
	if err != nil {
		if snapshot.IsFault(err) {
			e.rep.Warnf("iterating tasks")
		}
		return err
	}
	e.log.Debugln("scanning", len(tasks), "tasks")

	for _, task := range tasks {
		if err := sc.checkTask(task); err != nil {
			return err
		}
	}
	e.log.Debugln("scan complete, emitted", sc.matches, "matches")
	return nil
}

// checkTask inspects everything reachable from one task. A fault anywhere
// outside a narrower scope skips the rest of the task.
func (sc *scan) checkTask(task snapshot.Task) error {
	label := &taskLabel{task: task}
	return sc.faultScope(
		func() string { return "checking " + label.forWarning() },
		func() error {
			files, err := task.Files()
			if err != nil {
				return err
			}
			fs, err := task.FSContext()
			if err != nil {
				return err
			}
			mm, err := task.AddressSpace()
			if err != nil {
				return err
			}

			// A thread sharing a table with its thread-group leader is
			// covered by the leader's scan. A thread that unshared one
			// keeps a distinct handle and is checked normally.
			leader, err := task.GroupLeader()
			if err != nil {
				return err
			}
			if !snapshot.Same(task, leader) {
				if files != nil {
					lf, err := leader.Files()
					if err != nil {
						return err
					}
					if snapshot.Same(files, lf) {
						files = nil
					}
				}
				if fs != nil {
					lfs, err := leader.FSContext()
					if err != nil {
						return err
					}
					if snapshot.Same(fs, lfs) {
						fs = nil
					}
				}
				if mm != nil {
					lmm, err := leader.AddressSpace()
					if err != nil {
						return err
					}
					if snapshot.Same(mm, lmm) {
						mm = nil
					}
				}
			}

			if sc.checkMounts {
				if err := sc.checkNamespaceMounts(task); err != nil {
					return err
				}
			}

			if sc.opts.CheckTasks {
				if files != nil {
					if err := sc.checkFiles(label, files); err != nil {
						return err
					}
				}
				if fs != nil {
					if err := sc.checkFSContext(label, fs); err != nil {
						return err
					}
				}
				if mm != nil {
					if err := sc.checkAddressSpace(label, mm); err != nil {
						return err
					}
				}
			}
			return nil
		})
}

// checkNamespaceMounts scans the task's mount namespace unless an earlier
// task already covered it. The namespace is marked checked even when no
// mount matched, so it is never walked twice.
func (sc *scan) checkNamespaceMounts(task snapshot.Task) error {
	ns, err := task.MountNamespace()
	if err != nil {
		return err
	}
	if ns == nil || sc.checkedNS[ns.Address()] {
		return nil
	}

	note := ""
	if !snapshot.Same(ns, sc.initNS) {
		id, err := ns.ID()
		if err != nil {
			return err
		}
		note = fmt.Sprintf(" (mount namespace %d)", id)
	}

	mounts, err := ns.Mounts()
	if err != nil {
		return err
	}
	for _, mnt := range mounts {
		err := sc.faultScope(
			func() string { return "checking " + snapshot.Describe(mnt) },
			func() error {
				match, err := sc.sbMatcher.MatchMount(mnt)
				if err != nil || match == "" {
					return err
				}
				line := "mount"
				dst, err := mnt.Destination()
				if err != nil {
					if !snapshot.IsFault(err) {
						return err
					}
					// The match stands even when the destination cannot
					// be resolved.
					sc.engine.rep.Warnf("resolving destination of %s", snapshot.Describe(mnt))
				} else if dst != "" {
					line += " " + dst
				}
				sc.result("%s%s %s", line, note, match)
				return nil
			})
		if err != nil {
			return err
		}
	}
	sc.checkedNS[ns.Address()] = true
	return nil
}

func (sc *scan) checkFiles(label *taskLabel, files snapshot.FileTable) error {
	entries, err := files.Entries()
	if err != nil {
		return err
	}
	for _, ent := range entries {
		err := sc.faultScope(
			func() string { return fmt.Sprintf("checking fd %d of %s", ent.FD, label.forWarning()) },
			func() error {
				match, err := sc.matcher.MatchFile(ent.File)
				if err != nil || match == "" {
					return err
				}
				id, err := label.get()
				if err != nil {
					return err
				}
				sc.result("%s fd %d %s", id, ent.FD, match)
				return nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}

func (sc *scan) checkFSContext(label *taskLabel, fs snapshot.FSContext) error {
	for _, dir := range []struct {
		name string
		get  func() (snapshot.Path, error)
	}{
		{"root", fs.Root},
		{"cwd", fs.WorkingDir},
	} {
		err := sc.faultScope(
			func() string { return fmt.Sprintf("checking %s of %s", dir.name, label.forWarning()) },
			func() error {
				p, err := dir.get()
				if err != nil || p == nil {
					return err
				}
				match, err := sc.matcher.MatchPath(p)
				if err != nil || match == "" {
					return err
				}
				id, err := label.get()
				if err != nil {
					return err
				}
				sc.result("%s %s %s", id, dir.name, match)
				return nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}

func (sc *scan) checkAddressSpace(label *taskLabel, mm snapshot.AddressSpace) error {
	err := sc.faultScope(
		func() string { return "checking exe of " + label.forWarning() },
		func() error {
			exe, err := mm.ExecFile()
			if err != nil || exe == nil {
				return err
			}
			match, err := sc.matcher.MatchFile(exe)
			if err != nil || match == "" {
				return err
			}
			id, err := label.get()
			if err != nil {
				return err
			}
			sc.result("%s exe %s", id, match)
			return nil
		})
	if err != nil {
		return err
	}

	maps, err := mm.Mappings()
	if err != nil {
		return err
	}
	for _, vma := range maps {
		var start, end snapshot.Address
		haveRange := false
		err := sc.faultScope(
			func() string {
				if haveRange {
					return fmt.Sprintf("checking mapping 0x%x-0x%x of %s", uint64(start), uint64(end), label.forWarning())
				}
				return "checking mapping of " + label.forWarning()
			},
			func() error {
				var err error
				start, end, err = vma.Range()
				if err != nil {
					return err
				}
				haveRange = true
				f, err := vma.File()
				if err != nil || f == nil {
					return err
				}
				match, err := sc.matcher.MatchFile(f)
				if err != nil || match == "" {
					return err
				}
				id, err := label.get()
				if err != nil {
					return err
				}
				sc.result("%s vma 0x%x-0x%x %s", id, uint64(start), uint64(end), match)
				return nil
			})
		if err != nil {
			return err
		}
	}
	return nil
}

func (sc *scan) result(format string, args ...any) {
	sc.engine.rep.Resultf(format, args...)
	sc.matches++
}

// faultScope runs one fault-isolated step. A snapshot fault is reported
// with the given context and absorbed; any other error propagates, since
// the accessor contract only produces faults.
func (sc *scan) faultScope(context func() string, fn func() error) error {
	err := fn()
	if err == nil || !snapshot.IsFault(err) {
		return err
	}
	sc.engine.rep.Warnf("%s", context())
	return nil
}

// taskLabel memoizes the "pid N (comm)" prefix used on every result line
// of one task.
type taskLabel struct {
	task   snapshot.Task
	cached string
}

func (l *taskLabel) get() (string, error) {
	if l.cached == "" {
		pid, err := l.task.PID()
		if err != nil {
			return "", err
		}
		comm, err := l.task.Comm()
		if err != nil {
			return "", err
		}
		l.cached = fmt.Sprintf("pid %d (%s)", pid, comm)
	}
	return l.cached, nil
}

// forWarning returns the best label available from inside a fault path,
// where another read of the task cannot be trusted.
func (l *taskLabel) forWarning() string {
	if s, err := l.get(); err == nil {
		return s
	}
	return "task"
}
