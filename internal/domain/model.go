package domain

import "time"

// Model is a registry record for a servable model. In agent mode OwnedBy
// holds the base URL of the serving instance; Created is the registration
// time and drives the freshness window used for routing.
type Model struct {
	ID      string `json:"id" validate:"required,min=1"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by" validate:"required,min=1"`
}

// Validate checks the registration record.
func (m *Model) Validate() error { return validate.Struct(m) }

// FreshAt reports whether the model's registration is younger than period
// as of now. Stale registrations are never routed to.
func (m *Model) FreshAt(now time.Time, period time.Duration) bool {
	return m.Created >= now.Add(-period).Unix()
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// NewModelList wraps models in the list envelope. A nil slice yields an
// empty (non-null) data array on the wire.
func NewModelList(models []Model) ModelList {
	if models == nil {
		models = []Model{}
	}
	return ModelList{Object: "list", Data: models}
}

// ModelDeploy maps a public deploy name to the underlying provider model.
// A single provider model is commonly deployed under several names, e.g.
// the full identifier and its short suffix.
type ModelDeploy struct {
	DeployName string `json:"deploy_name" validate:"required,min=1"`
	ModelName  string `json:"model_name" validate:"required,min=1"`
}
