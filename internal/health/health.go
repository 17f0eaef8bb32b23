// Package health reports liveness and readiness of the forwarder.
package health

import (
	"fmt"
	"net/http"

	"github.com/dopl-dev/stream-forwarder/internal/producer"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFail     Status = "fail"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

type ReadinessReport struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// ProducerStatus is satisfied by producer.Producer.
type ProducerStatus interface {
	Stats() producer.Stats
}

// QueueStatus is satisfied by the failure archiver. Optional.
type QueueStatus interface {
	QueueDepth() int
	QueueCapacity() int
}

// DefaultCriticalPct is the queue fill level at which readiness degrades.
const DefaultCriticalPct = 90.0

type Health struct {
	producer    ProducerStatus
	queue       QueueStatus
	criticalPct float64
}

// New builds a Health. queue may be nil when no failure archive is running.
func New(producer ProducerStatus, queue QueueStatus) *Health {
	return &Health{producer: producer, queue: queue, criticalPct: DefaultCriticalPct}
}

// Live reports that the process is serving. It never consults dependencies.
func (h *Health) Live() int {
	return http.StatusOK
}

// Ready runs every configured check. Any failing check makes the report
// fail with 503; a degraded check still answers 200.
func (h *Health) Ready() (int, ReadinessReport) {
	checks := []CheckResult{}
	if h.producer != nil {
		checks = append(checks, h.checkProducer())
	}
	if h.queue != nil {
		checks = append(checks, h.checkQueue())
	}

	report := ReadinessReport{Status: StatusOK, Checks: checks}
	for _, c := range checks {
		switch c.Status {
		case StatusFail:
			report.Status = StatusFail
		case StatusDegraded:
			if report.Status == StatusOK {
				report.Status = StatusDegraded
			}
		}
	}
	if report.Status == StatusFail {
		return http.StatusServiceUnavailable, report
	}
	return http.StatusOK, report
}

func (h *Health) checkProducer() CheckResult {
	if !h.producer.Stats().Open {
		return CheckResult{Name: "producer", Status: StatusFail, Message: "producer closed"}
	}
	return CheckResult{Name: "producer", Status: StatusOK}
}

func (h *Health) checkQueue() CheckResult {
	capacity := h.queue.QueueCapacity()
	if capacity <= 0 {
		return CheckResult{Name: "failure_queue", Status: StatusOK}
	}
	pct := float64(h.queue.QueueDepth()) * 100 / float64(capacity)
	if pct >= h.criticalPct {
		return CheckResult{
			Name:    "failure_queue",
			Status:  StatusDegraded,
			Message: fmt.Sprintf("failure queue usage %.0f%%", pct),
		}
	}
	return CheckResult{Name: "failure_queue", Status: StatusOK}
}
