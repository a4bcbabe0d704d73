package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var auditFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guardrail_audit_flushes_total",
	Help: "Audit record batch flushes by status",
}, []string{"status"})
