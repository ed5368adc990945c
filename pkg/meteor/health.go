package meteor

import "time"

// HealthOutput holds the result of a health check.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Transport  bool   `json:"transport"`
	Serializer string `json:"serializer"`
	Pending    int    `json:"pending"`
	Bindings   int    `json:"bindings"`
	Services   int    `json:"services"`
	Uptime     string `json:"uptime"`
}

// Health reports the state of the endpoint.
func (m *Meteor) Health() *HealthOutput {
	open := !m.closed.Load()
	status := "ok"
	if !open {
		status = "closed"
	}

	m.mu.RLock()
	services := len(m.services)
	m.mu.RUnlock()

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Transport:  open,
			Serializer: m.serializer.Name(),
			Pending:    m.tracker.Pending(),
			Bindings:   m.registry.Len(),
			Services:   services,
			Uptime:     time.Since(m.started).Round(time.Second).String(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
