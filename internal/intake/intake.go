// Package intake receives command outcomes reported by the executor and
// writes them back into the owning session.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"browser-steps/internal/analysis"
	"browser-steps/internal/protocol"
	"browser-steps/internal/session"
)

// RichPayloadType is the command type whose results are analysed.
const RichPayloadType = "action_get_html_content"

// Registry resolves and updates commands by ID.
type Registry interface {
	Complete(commandID string, ok bool, errMsg string) (session.Command, bool)
}

// Intake applies result reports to the registry and stores them.
type Intake struct {
	registry  Registry
	processor analysis.Processor
	results   *ResultStore
	analyses  *AnalysisStore
	now       func() time.Time
}

// New creates an Intake. processor may be nil to disable analysis.
func New(registry Registry, processor analysis.Processor) *Intake {
	return &Intake{
		registry:  registry,
		processor: processor,
		results:   NewResultStore(),
		analyses:  NewAnalysisStore(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit records a result report. It only fails for a report without a
// command ID; reports for unknown or closed sessions are accepted and
// stored without touching any session.
func (in *Intake) Submit(ctx context.Context, req protocol.CommandResultRequest) error {
	if req.CommandID == "" {
		return protocol.ErrMissingCommandID
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ok := req.Succeeded()
	cmd, found := in.registry.Complete(req.CommandID, ok, req.ErrorMessage())

	ts := float64(in.now().UnixNano()) / 1e9
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	in.results.Put(Record{
		CommandID: req.CommandID,
		Result:    req.Result,
		Error:     req.Error,
		Timestamp: ts,
	})

	if !found {
		slog.Debug("result for unknown command", "command_id", req.CommandID)
		return nil
	}

	slog.Info("received command result",
		"command_id", req.CommandID,
		"type", cmd.Type,
		"status", cmd.Status,
		"error", req.ErrorMessage(),
	)

	if cmd.Type == RichPayloadType && ok {
		in.analyse(req)
	}
	return nil
}

// analyse runs the post-processor. Failures, including panics, become an
// error record and never reach the caller.
func (in *Intake) analyse(req protocol.CommandResultRequest) {
	if in.processor == nil {
		return
	}

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			slog.Warn("HTML analysis failed", "command_id", req.CommandID, "error", err)
			in.analyses.Put(analysis.ErrorRecord(req.CommandID, err, in.now()))
		}
	}()

	page, err := analysis.PageFromResult(req.Result)
	if err != nil {
		return
	}

	var rec *analysis.Record
	rec, err = in.processor.Process(req.CommandID, page)
	if err != nil || rec == nil {
		return
	}
	in.analyses.Put(*rec)
}

// Result returns the stored report for a command.
func (in *Intake) Result(commandID string) (Record, bool) {
	return in.results.Get(commandID)
}

// Analysis returns the analysis record for a command.
func (in *Intake) Analysis(commandID string) (analysis.Record, bool) {
	return in.analyses.Get(commandID)
}

// Analyses returns all analysis records.
func (in *Intake) Analyses() []analysis.Record {
	return in.analyses.List()
}

// Reset drops all stored result and analysis records.
func (in *Intake) Reset() {
	in.results.Clear()
	in.analyses.Clear()
}
