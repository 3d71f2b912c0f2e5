//go:build !linux

package main

import (
	"errors"

	"fsrefs/snapshot"
)

func openLive() (snapshot.Snapshot, error) {
	return nil, errors.New("live scans need /proc; use -demo on this platform")
}

func resolvePathTarget(path string, follow, wantSB bool) (snapshot.Handle, error) {
	return nil, errors.New("path targets need a live linux system")
}
