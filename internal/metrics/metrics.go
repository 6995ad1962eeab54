// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsTotal counts finished playback sessions by outcome
	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vplay_sessions_total",
		Help: "Playback sessions by terminal outcome",
	}, []string{"outcome"})

	// SessionDuration tracks wall time from pipeline construction to teardown
	SessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vplay_session_duration_seconds",
		Help:    "Duration of playback sessions including teardown",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 14), // 50ms to ~7min
	})

	BuffersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vplay_buffers_submitted_total",
		Help: "Non-empty decoder input buffers submitted",
	})

	BytesFed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vplay_bytes_fed_total",
		Help: "Elementary stream bytes handed to the decoder",
	})

	// ControlCommands counts frames received on the control channel by decoded kind
	ControlCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vplay_control_commands_total",
		Help: "Control frames received by decoded command kind",
	}, []string{"kind"})

	// MailboxOverwrites counts commands replaced before the player took them
	MailboxOverwrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vplay_mailbox_overwrites_total",
		Help: "Pending control commands discarded by a newer command",
	})

	ListenerUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vplay_listener_up",
		Help: "1 while the control channel listener is receiving",
	})

	TeardownErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vplay_teardown_errors_total",
		Help: "Secondary failures swallowed during pipeline teardown",
	})

	ConstructFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vplay_pipeline_construct_failures_total",
		Help: "Pipeline construction failures by stage",
	}, []string{"stage"})
)

func IncSession(outcome string) {
	SessionsTotal.WithLabelValues(outcome).Inc()
}

func IncControlCommand(kind string) {
	ControlCommands.WithLabelValues(kind).Inc()
}

func IncConstructFailure(stage string) {
	ConstructFailures.WithLabelValues(stage).Inc()
}

// ObserveSubmission records one non-empty decoder submission of n bytes.
func ObserveSubmission(n int) {
	BuffersSubmitted.Inc()
	BytesFed.Add(float64(n))
}

func SetListenerUp(up bool) {
	if up {
		ListenerUp.Set(1)
		return
	}
	ListenerUp.Set(0)
}
