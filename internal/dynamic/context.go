package dynamic

import "log/slog"

// ExecContext carries the per-execution collaborators handed to strategies:
// the canonical stdout/stderr capture pair and a structured logger.
type ExecContext struct {
	// OutErr is the canonical capture pair for the spawn. During a race,
	// strategies receive a copy of the context pointing at branch-scoped
	// files instead; they never write here directly.
	OutErr *OutErr

	// Log receives debug output and swallowed merge errors.
	Log *slog.Logger
}

// NewExecContext returns an ExecContext writing to outErr. A nil logger
// defaults to slog.Default.
func NewExecContext(outErr *OutErr, log *slog.Logger) *ExecContext {
	if log == nil {
		log = slog.Default()
	}
	return &ExecContext{OutErr: outErr, Log: log}
}

// WithOutErr returns a copy of the context capturing to a different pair.
func (c *ExecContext) WithOutErr(outErr *OutErr) *ExecContext {
	cp := *c
	cp.OutErr = outErr
	return &cp
}

func (c *ExecContext) withLogger(log *slog.Logger) *ExecContext {
	cp := *c
	cp.Log = log
	return &cp
}
