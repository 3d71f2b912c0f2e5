package snapshot

import (
	"errors"
	"fmt"
)

// FaultError reports a failed read from the snapshot, typically caused by
// racing against a live target or by partial state in a crash image. It is
// distinct from an absent value: reads report absence as a nil handle (or
// empty string) with a nil error.
type FaultError struct {
	Op   string  // what was being read, e.g. "file.f_inode"
	Addr Address // address the read touched, 0 if unknown
}

func (e *FaultError) Error() string {
	if e.Addr != 0 {
		return fmt.Sprintf("fault reading %s at 0x%x", e.Op, uint64(e.Addr))
	}
	return fmt.Sprintf("fault reading %s", e.Op)
}

// IsFault reports whether err is, or wraps, a snapshot read fault.
func IsFault(err error) bool {
	var fe *FaultError
	return errors.As(err, &fe)
}
