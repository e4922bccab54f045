package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reuseDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "keyfold",
	Subsystem: "auth",
	Name:      "refresh_reuse_detected_total",
	Help:      "Refresh token replays outside the grace window.",
})

var sweepDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "keyfold",
	Subsystem: "auth",
	Name:      "sweep_deleted_total",
	Help:      "Expired records removed by the background sweeper.",
}, []string{"kind"})
