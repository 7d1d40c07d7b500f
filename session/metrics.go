package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_frames_total",
		Help: "Inbound frames dispatched, by kind.",
	}, []string{"kind"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_frames_dropped_total",
		Help: "Inbound frames dropped: malformed or unknown kind.",
	})

	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatcore_sends_total",
		Help: "Outbound frames written, by kind.",
	}, []string{"kind"})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatcore_reconnect_attempts_total",
		Help: "Connection attempts after the first.",
	})
)
