package metrics

import coremetrics "github.com/kilianp07/cpflow/core/metrics"

// MultiSink fans gateway events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordCall(ev coremetrics.CallEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCall(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordWorkflow(ev coremetrics.WorkflowEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordWorkflow(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordPipelet(ev coremetrics.PipeletEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPipelet(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordSession(ev coremetrics.SessionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordSession(ev); err != nil {
			return err
		}
	}
	return nil
}
