package refs

import (
	"fsrefs/snapshot"
)

// Matcher tests snapshot records against the target object selected at
// startup. A "" result with a nil error means the record does not refer
// to the target; a *snapshot.FaultError means the test itself could not
// be completed.
type Matcher interface {
	MatchFile(f snapshot.File) (string, error)
	MatchInode(ino snapshot.Inode) (string, error)
	MatchPath(p snapshot.Path) (string, error)
}

// InodeMatcher matches records referring to one specific inode.
type InodeMatcher struct {
	target snapshot.Handle
}

// NewInodeMatcher builds a matcher for the given inode handle.
func NewInodeMatcher(target snapshot.Handle) *InodeMatcher {
	return &InodeMatcher{target: target}
}

func (m *InodeMatcher) MatchFile(f snapshot.File) (string, error) {
	ino, err := f.Inode()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(ino, m.target) {
		return "", nil
	}
	return snapshot.Describe(f), nil
}

func (m *InodeMatcher) MatchInode(ino snapshot.Inode) (string, error) {
	if !snapshot.Same(ino, m.target) {
		return "", nil
	}
	return snapshot.Describe(ino), nil
}

func (m *InodeMatcher) MatchPath(p snapshot.Path) (string, error) {
	d, err := p.Dentry()
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", nil
	}
	ino, err := d.Inode()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(ino, m.target) {
		return "", nil
	}
	return snapshot.Describe(p), nil
}

// SuperBlockMatcher matches records referring to any object on one
// filesystem instance. Matched records are enriched with a resolved path
// when the snapshot can provide one; a fault during that resolution only
// drops the enrichment, never the match.
type SuperBlockMatcher struct {
	target snapshot.Handle
	rep    *Reporter
}

// NewSuperBlockMatcher builds a matcher for the given super block handle.
// The reporter receives warnings for failed path resolutions.
func NewSuperBlockMatcher(target snapshot.Handle, rep *Reporter) *SuperBlockMatcher {
	return &SuperBlockMatcher{target: target, rep: rep}
}

func (m *SuperBlockMatcher) MatchFile(f snapshot.File) (string, error) {
	ino, err := f.Inode()
	if err != nil {
		return "", err
	}
	if ino == nil {
		return "", nil
	}
	sb, err := ino.SuperBlock()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(sb, m.target) {
		return "", nil
	}
	match := snapshot.Describe(f)
	m.enrich(&match, func() (string, error) {
		p, err := f.Path()
		if err != nil || p == nil {
			return "", err
		}
		return p.Resolve()
	})
	return match, nil
}

func (m *SuperBlockMatcher) MatchInode(ino snapshot.Inode) (string, error) {
	sb, err := ino.SuperBlock()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(sb, m.target) {
		return "", nil
	}
	match := snapshot.Describe(ino)
	m.enrich(&match, ino.ReversePath)
	return match, nil
}

func (m *SuperBlockMatcher) MatchPath(p snapshot.Path) (string, error) {
	mnt, err := p.Mount()
	if err != nil {
		return "", err
	}
	if mnt == nil {
		return "", nil
	}
	sb, err := mnt.SuperBlock()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(sb, m.target) {
		return "", nil
	}
	match := snapshot.Describe(p)
	m.enrich(&match, p.Resolve)
	return match, nil
}

// MatchMount tests one mount table entry. Destination resolution is left
// to the caller, which also owns the namespace annotation.
func (m *SuperBlockMatcher) MatchMount(mnt snapshot.Mount) (string, error) {
	sb, err := mnt.SuperBlock()
	if err != nil {
		return "", err
	}
	if !snapshot.Same(sb, m.target) {
		return "", nil
	}
	return snapshot.Describe(mnt), nil
}

// enrich appends a resolved path to a match. Resolution is best effort: a
// fault warns and leaves the match as is.
func (m *SuperBlockMatcher) enrich(match *string, resolve func() (string, error)) {
	s, err := resolve()
	if err != nil {
		m.rep.Warnf("resolving path of %s", *match)
		return
	}
	if s != "" {
		*match += " " + s
	}
}
