package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lost-woods/nistcheck/src/history"
	"github.com/lost-woods/nistcheck/src/runner"
	"github.com/lost-woods/nistcheck/src/suite"
)

func (h *Handlers) Progress(c *gin.Context) {
	p := h.ctrl.State().Snapshot()
	running := h.ctrl.Running()

	text := p.String()
	if running {
		text = "Running\n" + text
	}

	responder{c}.ok(text, gin.H{
		"running":      running,
		"run":          h.ctrl.Current(),
		"progress":     p,
		"fraction":     p.Fraction(),
		"time_left_ms": p.TimeLeft().Milliseconds(),
		"elapsed_ms":   p.Elapsed.Milliseconds(),
	})
}

func (h *Handlers) Tests(c *gin.Context) {
	descs := h.ctrl.Registry().Snapshot()

	var out bytes.Buffer
	for _, d := range descs {
		out.WriteString(describeTest(d))
		out.WriteByte('\n')
	}

	responder{c}.ok(out.String(), gin.H{"tests": descs})
}

func describeTest(d suite.Descriptor) string {
	mark := " "
	if d.Enabled {
		mark = "x"
	}
	s := fmt.Sprintf("[%s] %s", mark, d.Name)
	if d.Param != nil {
		s += fmt.Sprintf(" %d (%d..%d)", d.Param.Value, d.Param.Min, d.Param.Max)
	}
	return s
}

type testUpdate struct {
	Enabled   *bool `json:"enabled"`
	Parameter *int  `json:"parameter"`
}

func (h *Handlers) UpdateTest(c *gin.Context) {
	if h.ctrl.Running() {
		responder{c}.err(http.StatusConflict, "Tests can't be changed while a run is in progress.")
		return
	}

	var req testUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		responder{c}.err(http.StatusBadRequest, "Invalid test update: "+err.Error())
		return
	}

	reg := h.ctrl.Registry()
	id := suite.TestID(c.Param("id"))
	if _, ok := reg.Lookup(id); !ok {
		responder{c}.err(http.StatusNotFound, fmt.Sprintf("Unknown test %q.", id))
		return
	}

	if req.Parameter != nil {
		if _, err := reg.SetParam(id, *req.Parameter); err != nil {
			responder{c}.err(http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Enabled != nil {
		if err := reg.SetEnabled(id, *req.Enabled); err != nil {
			responder{c}.err(http.StatusBadRequest, err.Error())
			return
		}
	}

	d, _ := reg.Lookup(id)
	h.log.Infow("Test updated", "test", d.Name, "enabled", d.Enabled, "parameter", d.ParamValue())
	responder{c}.ok(describeTest(d), gin.H{"test": d})
}

// runRequest has no report path: over HTTP the report always goes next to
// the input.
type runRequest struct {
	Path   string `json:"path" binding:"required"`
	Bits   int    `json:"bits"`
	Blocks int    `json:"blocks"`
}

func (h *Handlers) StartRun(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responder{c}.err(http.StatusBadRequest, "Invalid run request: "+err.Error())
		return
	}
	if req.Bits == 0 {
		req.Bits = h.defaultBits
	}
	if req.Blocks < 0 {
		responder{c}.err(http.StatusBadRequest, "Blocks must not be negative.")
		return
	}

	run, err := h.ctrl.Start(runner.Request{
		Path:         req.Path,
		BitsPerBlock: req.Bits,
		Blocks:       req.Blocks,
	})
	if errors.Is(err, runner.ErrRunning) {
		responder{c}.err(http.StatusConflict, "A run is already in progress.")
		return
	}
	if err != nil {
		h.log.Warnw("Can't start run", "path", req.Path, "error", err)
		responder{c}.err(http.StatusBadRequest, "Can't start run: "+err.Error())
		return
	}

	responder{c}.status(http.StatusAccepted,
		fmt.Sprintf("Run %s started: %d blocks of %d bits", run.ID, run.Blocks, run.BitsPerBlock),
		gin.H{"run": run})
}

func (h *Handlers) Stop(c *gin.Context) {
	if err := h.ctrl.Stop(); err != nil {
		responder{c}.err(http.StatusConflict, "No run in progress.")
		return
	}
	responder{c}.status(http.StatusAccepted, "Stop requested", gin.H{"stop_requested": true})
}

func (h *Handlers) Report(c *gin.Context) {
	report := h.ctrl.LastReport()
	if report == nil {
		responder{c}.err(http.StatusNotFound, "No completed run yet.")
		return
	}
	responder{c}.ok(report.Text, gin.H{
		"report":      report,
		"pass_ratios": report.PassRatios(),
	})
}

func (h *Handlers) Runs(c *gin.Context) {
	if h.history == nil {
		responder{c}.err(http.StatusNotFound, "Run history is not configured.")
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 1000 {
		responder{c}.err(http.StatusBadRequest, "Limit must be an integer between 1 and 1000.")
		return
	}

	runs, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		h.log.Error(err)
		responder{c}.err(http.StatusInternalServerError, "Error reading run history.")
		return
	}

	var out bytes.Buffer
	for _, r := range runs {
		fmt.Fprintf(&out, "%s  %s  %d/%d failed  %s\n",
			r.ID, r.FinishedAt.Format(time.RFC3339), r.Failed, r.Subtests, r.Source)
	}
	responder{c}.ok(out.String(), gin.H{"runs": runs})
}

func (h *Handlers) RunByID(c *gin.Context) {
	if h.history == nil {
		responder{c}.err(http.StatusNotFound, "Run history is not configured.")
		return
	}

	run, err := h.history.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, history.ErrNotFound) {
		responder{c}.err(http.StatusNotFound, "Run not found.")
		return
	}
	if err != nil {
		h.log.Error(err)
		responder{c}.err(http.StatusInternalServerError, "Error reading run history.")
		return
	}
	responder{c}.ok(run.Report, gin.H{"run": run})
}

func (h *Handlers) Health(c *gin.Context) {
	ok, msg, t := h.ctrl.Health().Snapshot()
	if t.IsZero() {
		responder{c}.ok("UNKNOWN: no source checked yet", gin.H{"ok": false, "checked": false})
		return
	}

	if ok {
		responder{c}.ok(
			fmt.Sprintf("OK (last checked %s)", t.Format(time.RFC3339)),
			gin.H{"ok": true, "checked": true, "last_checked": t.Format(time.RFC3339)},
		)
		return
	}

	responder{c}.ok(
		fmt.Sprintf("SUSPICIOUS: %s (last checked %s)", msg, t.Format(time.RFC3339)),
		gin.H{"ok": false, "checked": true, "error": msg, "last_checked": t.Format(time.RFC3339)},
	)
}
