package refs

import (
	"fmt"
	"io"
)

// Reporter owns the two output streams of a scan: result lines on Out and
// warnings on Diag. Keeping them separate keeps the result stream
// greppable. Lines are written one Fprintf at a time so results surface
// while the scan is still running.
type Reporter struct {
	Out  io.Writer
	Diag io.Writer
}

func NewReporter(out, diag io.Writer) *Reporter {
	return &Reporter{Out: out, Diag: diag}
}

// Resultf emits one result line.
func (r *Reporter) Resultf(format string, args ...any) {
	fmt.Fprintf(r.Out, format+"\n", args...)
}

// Warnf emits one fault warning describing what was being read when the
// fault hit.
func (r *Reporter) Warnf(format string, args ...any) {
	fmt.Fprintf(r.Diag,
		"warning: fault while %s, possibly due to race; results may be incomplete\n",
		fmt.Sprintf(format, args...))
}
