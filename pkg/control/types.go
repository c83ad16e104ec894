package control

// WorkerStatus is one entry in StatusResponse.Workers.
type WorkerStatus struct {
	Host          string  `json:"host"`
	ContainerName string  `json:"container_name"`
	Status        string  `json:"status"`
	LatencySec    float64 `json:"latency_seconds"`
}

// StatusResponse is the JSON body for GET /status.
type StatusResponse struct {
	Policy     string         `json:"policy"`
	UptimeSec  float64        `json:"uptime_seconds"`
	FleetCount int            `json:"fleet_count"`
	Workers    []WorkerStatus `json:"workers"`
}

// IndexResponse is the JSON body for GET /.
type IndexResponse struct {
	Message  string            `json:"message"`
	Backends BackendCounts     `json:"backends"`
	Paths    map[string]string `json:"endpoints"`
}

// BackendCounts summarizes the routable set for the index response.
type BackendCounts struct {
	Total   int `json:"total"`
	Healthy int `json:"healthy"`
}

// ErrorResponse is the JSON body for 4xx control-surface responses
// that carry one, e.g. /set_mode on an unrecognized identifier.
type ErrorResponse struct {
	Error          string   `json:"error"`
	AvailableModes []string `json:"available_modes,omitempty"`
}
