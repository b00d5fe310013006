/*
Status and queue reports

This file may be distributed under the terms of the GNU GPLv3 license.
*/
package report

import (
	"fmt"
	"io"
	"reflect"
	"sync"
	"time"

	"cncplan/common/config"
	"cncplan/common/logger"
	"cncplan/common/utils/sys"
	"cncplan/project"

	"code.hybscloud.com/atomix"
	"github.com/flosch/pongo2/v5"
	"github.com/sugawarayuuta/sonnet"
)

const (
	DefaultStatusTemplate = "line:{{ line }} pos:{{ posx|floatformat:3 }},{{ posy|floatformat:3 }},{{ posz|floatformat:3 }} vel:{{ vel|floatformat:1 }} cycle:{{ cycle }} motion:{{ motion }} hold:{{ hold }}"
	DefaultQueueTemplate  = "qr:{{ qr }}"
)

type Options struct {
	Format         string
	StatusTemplate string
	QueueTemplate  string
	// MinInterval spaces status reports. A request arriving sooner stays
	// pending until the interval has passed.
	MinInterval time.Duration
}

func OptionsFromConfig(cfg config.ReportConfig) Options {
	return Options{Format: cfg.Format, StatusTemplate: cfg.StatusTemplate, QueueTemplate: cfg.QueueTemplate}
}

// Reporter turns planner requests into report lines on out. Requests may
// come from any goroutine; the callbacks run on the main loop.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	format string
	status *pongo2.Template
	queue  *pongo2.Template

	interval   time.Duration
	lastStatus time.Time
	last       map[string]interface{}

	statusReq  atomix.Uint32
	queueReq   atomix.Uint32
	statusSeen uint32
	queueSeen  uint32

	emitted atomix.Uint32
	cycles  atomix.Uint32
}

func NewReporter(out io.Writer, opts Options) (*Reporter, error) {
	self := &Reporter{out: out, format: opts.Format, interval: opts.MinInterval}
	if self.format == "" {
		self.format = config.ReportText
	}
	if self.format != config.ReportText && self.format != config.ReportJSON {
		return nil, fmt.Errorf("unknown report format %q", self.format)
	}
	statusSrc, queueSrc := opts.StatusTemplate, opts.QueueTemplate
	if statusSrc == "" {
		statusSrc = DefaultStatusTemplate
	}
	if queueSrc == "" {
		queueSrc = DefaultQueueTemplate
	}
	var err error
	if self.status, err = pongo2.FromString(statusSrc); err != nil {
		return nil, fmt.Errorf("status template: %w", err)
	}
	if self.queue, err = pongo2.FromString(queueSrc); err != nil {
		return nil, fmt.Errorf("queue template: %w", err)
	}
	return self, nil
}

func (self *Reporter) RequestStatusReport() {
	self.statusReq.Add(1)
}

func (self *Reporter) RequestQueueReport() {
	self.queueReq.Add(1)
}

func (self *Reporter) CycleStarted(id string) {
	self.cycles.Add(1)
	self.writeEvent("cycle", map[string]interface{}{"id": id, "state": "started"})
}

func (self *Reporter) CycleEnded(id string) {
	self.writeEvent("cycle", map[string]interface{}{"id": id, "state": "ended"})
	self.RequestStatusReport()
}

// Emitted counts report lines written, cycle events excluded.
func (self *Reporter) Emitted() uint32 {
	return self.emitted.Load()
}

func (self *Reporter) Cycles() uint32 {
	return self.cycles.Load()
}

// Last returns a copy of the most recent status fields.
func (self *Reporter) Last() map[string]interface{} {
	self.mu.Lock()
	defer self.mu.Unlock()
	return sys.DeepCopyMap(self.last)
}

func statusFields(st project.Status) map[string]interface{} {
	fields := map[string]interface{}{
		"line":     st.Linenum,
		"index":    st.Lineindex,
		"vel":      st.Velocity,
		"cycle":    st.Cycle.String(),
		"motion":   st.Motion.String(),
		"hold":     st.Hold.String(),
		"buffers":  st.BuffersAvailable,
		"segments": st.Segments,
		"cycle_id": st.CycleID,
	}
	for i, name := range config.AxisNames {
		fields["pos"+name] = st.WorkPosition[i]
		fields["mpo"+name] = st.MachinePosition[i]
	}
	return fields
}

func (self *Reporter) StatusReportCallback(src project.StatusSource) project.ExecResult {
	req := self.statusReq.Load()
	if req == self.statusSeen {
		return project.ExecNoop
	}
	now := time.Now()
	if self.interval > 0 && now.Sub(self.lastStatus) < self.interval {
		return project.ExecNoop
	}
	self.statusSeen = req

	fields := statusFields(src.Status())
	self.mu.Lock()
	defer self.mu.Unlock()
	if reflect.DeepEqual(fields, self.last) {
		return project.ExecDone
	}
	self.last = sys.DeepCopyMap(fields)
	self.lastStatus = now
	self.render("sr", self.status, fields)
	return project.ExecDone
}

func (self *Reporter) QueueReportCallback(src project.StatusSource) project.ExecResult {
	req := self.queueReq.Load()
	if req == self.queueSeen {
		return project.ExecNoop
	}
	self.queueSeen = req
	st := src.Status()
	fields := map[string]interface{}{"qr": st.BuffersAvailable, "line": st.Linenum}
	self.mu.Lock()
	defer self.mu.Unlock()
	self.render("qr", self.queue, fields)
	return project.ExecDone
}

// render must be called with mu held.
func (self *Reporter) render(key string, tpl *pongo2.Template, fields map[string]interface{}) {
	var line []byte
	if self.format == config.ReportJSON {
		body, err := sonnet.Marshal(map[string]interface{}{key: fields})
		if err != nil {
			logger.Errorf("%s report: %v", key, err)
			return
		}
		line = body
	} else {
		text, err := tpl.Execute(pongo2.Context(fields))
		if err != nil {
			logger.Errorf("%s report: %v", key, err)
			return
		}
		line = []byte(text)
	}
	line = append(line, '\n')
	if _, err := self.out.Write(line); err != nil {
		logger.Warnf("%s report dropped: %v", key, err)
		return
	}
	self.emitted.Add(1)
}

func (self *Reporter) writeEvent(key string, fields map[string]interface{}) {
	self.mu.Lock()
	defer self.mu.Unlock()
	var line []byte
	if self.format == config.ReportJSON {
		body, err := sonnet.Marshal(map[string]interface{}{key: fields})
		if err != nil {
			logger.Errorf("%s event: %v", key, err)
			return
		}
		line = body
	} else {
		line = []byte(fmt.Sprintf("%s %s %s", key, fields["state"], fields["id"]))
	}
	line = append(line, '\n')
	if _, err := self.out.Write(line); err != nil {
		logger.Warnf("%s event dropped: %v", key, err)
	}
}
