package wiznet

import "sync/atomic"

// ClientMetrics contains atomic counters of a Client.
// Metrics can be used as the value of a prometheus CounterFunc.
type ClientMetrics struct {
	// ExchangeCount indicates the number of exchanges (with or without reply) started.
	ExchangeCount atomic.Uint64
	// AttemptCount indicates the number of connections attempted, over all exchanges.
	AttemptCount atomic.Uint64
	// TransportErrCount indicates the number of attempts that failed at dial, send or read.
	TransportErrCount atomic.Uint64
	// FramingErrCount indicates the number of replies rejected by frame validation.
	FramingErrCount atomic.Uint64
	// RetriesExhaustedCount indicates the number of exchanges that ran out of attempts.
	RetriesExhaustedCount atomic.Uint64
}

func (m *ClientMetrics) incExchangeCount() {
	m.ExchangeCount.Add(1)
}

func (m *ClientMetrics) incAttemptCount() {
	m.AttemptCount.Add(1)
}

func (m *ClientMetrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *ClientMetrics) incFramingErrCount() {
	m.FramingErrCount.Add(1)
}

func (m *ClientMetrics) incRetriesExhaustedCount() {
	m.RetriesExhaustedCount.Add(1)
}
