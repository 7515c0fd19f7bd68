package anc

import "sync/atomic"

// ControllerMetrics contains atomic counters of a Controller.
type ControllerMetrics struct {
	// CommandCount indicates the number of commands issued to the transport.
	CommandCount atomic.Uint64
	// StepCmdCount indicates the number of step commands dispatched.
	StepCmdCount atomic.Uint64
	// SuppressedStepErrCount indicates step replies that failed framing and were only logged.
	SuppressedStepErrCount atomic.Uint64
	// CapacitanceNaNCount indicates capacitance replies that could not be parsed.
	CapacitanceNaNCount atomic.Uint64
}

func (m *ControllerMetrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *ControllerMetrics) incStepCmdCount() {
	m.StepCmdCount.Add(1)
}

func (m *ControllerMetrics) incSuppressedStepErrCount() {
	m.SuppressedStepErrCount.Add(1)
}

func (m *ControllerMetrics) incCapacitanceNaNCount() {
	m.CapacitanceNaNCount.Add(1)
}
