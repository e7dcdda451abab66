package dynamic

import (
	"io"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"
)

// OutErr is a pair of files capturing a spawn's stdout and stderr.
//
// During a race each branch writes to its own suffixed copy of the canonical
// pair, so the canonical files are never written concurrently. Whichever
// branch finalizes merges its copy back with MoveOnto.
type OutErr struct {
	// OutPath and ErrPath are the capture file locations.
	OutPath string
	ErrPath string

	stdout *os.File
	stderr *os.File
}

// NewOutErr returns an OutErr capturing to the given paths. The files are
// created lazily on first write.
func NewOutErr(outPath, errPath string) *OutErr {
	return &OutErr{OutPath: outPath, ErrPath: errPath}
}

// WithSuffix derives a new OutErr whose file names are this one's with the
// given suffix appended. Used to give each racing branch its own capture
// files next to the canonical ones.
func (o *OutErr) WithSuffix(suffix string) *OutErr {
	return NewOutErr(o.OutPath+suffix, o.ErrPath+suffix)
}

// Stdout returns the writer for captured standard output, creating the file
// on first use.
func (o *OutErr) Stdout() (io.Writer, error) {
	if o.stdout == nil {
		f, err := os.OpenFile(o.OutPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		o.stdout = f
	}
	return o.stdout, nil
}

// Stderr returns the writer for captured standard error, creating the file
// on first use.
func (o *OutErr) Stderr() (io.Writer, error) {
	if o.stderr == nil {
		f, err := os.OpenFile(o.ErrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		o.stderr = f
	}
	return o.stderr, nil
}

// Close flushes and closes any capture files that were opened. It is safe to
// call on an OutErr that was never written to.
func (o *OutErr) Close() error {
	var merr *multierror.Error
	if o.stdout != nil {
		merr = multierror.Append(merr, o.stdout.Close())
		o.stdout = nil
	}
	if o.stderr != nil {
		merr = multierror.Append(merr, o.stderr.Close())
		o.stderr = nil
	}
	return merr.ErrorOrNil()
}

// MoveOnto appends this pair's captured content onto dst and removes the
// source files. A capture file that was never created is skipped. All I/O
// errors are logged and swallowed: a failed log merge must never mask the
// result of the execution that produced it.
func (o *OutErr) MoveOnto(dst *OutErr, log *slog.Logger) {
	appendFile(o.OutPath, dst.OutPath, log)
	appendFile(o.ErrPath, dst.ErrPath, log)
}

func appendFile(src, dst string, log *slog.Logger) {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		log.Warn("could not read execution log for merge", "path", src, "err", err)
		return
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn("could not open execution log for merge", "path", dst, "err", err)
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		log.Warn("could not merge execution log", "src", src, "dst", dst, "err", err)
		return
	}
	if err := os.Remove(src); err != nil {
		log.Warn("could not remove merged execution log", "path", src, "err", err)
	}
}
