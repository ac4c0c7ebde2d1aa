package node

import (
	"math"

	"github.com/sweeney/button-sensor/internal/sensor"
)

// Child is the node's implementation of sensor.Channel.
// It is only touched from the node run loop and needs no locking.
type Child struct {
	id         int
	name       string
	value      int
	processing sensor.Processing
	reportMode sensor.ReportMode

	sum      int
	samples  int
	pending  bool
	writes   int
	reports  int
	reported bool
}

// ID returns the child ID.
func (c *Child) ID() int { return c.id }

// Name returns the name the child is presented with.
func (c *Child) Name() string { return c.name }

// LastValue returns the last value written.
func (c *Child) LastValue() int { return c.value }

// SetValue records v and marks the child for reporting.
func (c *Child) SetValue(v int) {
	c.value = v
	c.sum += v
	c.samples++
	c.writes++
	c.pending = true
}

// SetValueProcessing selects instantaneous or averaged reporting.
func (c *Child) SetValueProcessing(p sensor.Processing) { c.processing = p }

// SetReportMode selects immediate or interval reporting.
func (c *Child) SetReportMode(m sensor.ReportMode) { c.reportMode = m }

// ReportMode returns the requested report mode.
func (c *Child) ReportMode() sensor.ReportMode { return c.reportMode }

// Pending reports whether a value is waiting to be transmitted.
func (c *Child) Pending() bool { return c.pending }

// reportValue returns the value to transmit under the processing mode.
func (c *Child) reportValue() int {
	if c.processing == sensor.ProcessingAverage && c.samples > 0 {
		return int(math.Round(float64(c.sum) / float64(c.samples)))
	}
	return c.value
}

func (c *Child) markReported() {
	c.sum = 0
	c.samples = 0
	c.pending = false
	c.reports++
	c.reported = true
}
