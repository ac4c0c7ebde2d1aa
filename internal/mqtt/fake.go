package mqtt

import "sync"

// FakeReporter records published messages for test assertions.
type FakeReporter struct {
	mu sync.Mutex

	// Presentations contains every child presentation, in order.
	Presentations []Presentation

	// Reports contains all child values that were reported.
	Reports []Report

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// ReportError, if set, will be returned by Report.
	ReportError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakeReporter creates a FakeReporter for testing.
func NewFakeReporter() *FakeReporter {
	return &FakeReporter{}
}

// Present records the presentation.
func (f *FakeReporter) Present(p Presentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Presentations = append(f.Presentations, p)
	return nil
}

// Report records the child value.
func (f *FakeReporter) Report(r Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReportError != nil {
		return f.ReportError
	}
	f.Reports = append(f.Reports, r)
	return nil
}

// PublishSystem records the system event.
func (f *FakeReporter) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// ReportCount returns the number of recorded reports.
func (f *FakeReporter) ReportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Reports)
}

// ReportsSnapshot returns a copy of the recorded reports.
func (f *FakeReporter) ReportsSnapshot() []Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Report(nil), f.Reports...)
}

// SystemPayloadsSnapshot returns a copy of the recorded system payloads.
func (f *FakeReporter) SystemPayloadsSnapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.SystemPayloads...)
}

// Close marks the reporter as closed.
func (f *FakeReporter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake reporter is "connected".
func (f *FakeReporter) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakeReporter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Presentations = nil
	f.Reports = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.ReportError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
