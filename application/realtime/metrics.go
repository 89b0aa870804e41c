package realtime

// Metrics receives relay counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// ConnectionsChanged reports the number of connections now open
	ConnectionsChanged(total int)
	FanoutCompleted(eventType string, delivered, failed int)
	FrameDropped()
	FrameRejected(reason string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) ConnectionsChanged(int)           {}
func (NopMetrics) FanoutCompleted(string, int, int) {}
func (NopMetrics) FrameDropped()                    {}
func (NopMetrics) FrameRejected(string)             {}
