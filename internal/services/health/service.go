package health

import "time"

// ModelSource reports the provider and the model resolved so far.
type ModelSource interface {
	Provider() string
	CurrentModel() string
}

// Service reports liveness without calling the model provider.
type Service struct {
	models  ModelSource
	started time.Time
}

// NewService constructs a health service.
func NewService(models ModelSource) *Service {
	return &Service{models: models, started: time.Now()}
}

// Status is the health payload.
type Status struct {
	OK            bool   `json:"ok"`
	Provider      string `json:"provider,omitempty"`
	Model         string `json:"model,omitempty"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
}

// Status returns the current health payload. Model stays empty until the first
// analysis or model listing resolves it.
func (s *Service) Status() Status {
	st := Status{OK: true, UptimeSeconds: int64(time.Since(s.started).Seconds())}
	if s.models != nil {
		st.Provider = s.models.Provider()
		st.Model = s.models.CurrentModel()
	}
	return st
}
