// Package analysis defines the external analysis capability consumed by the
// audit coordinator, with two implementations: a deterministic rule engine
// and a generative-model client.
package analysis

import (
	"context"
	"encoding/json"

	"github.com/secureaudit/secureaudit/pkg/models/domain"
)

// Analyzer inspects resource data and returns candidate findings for the
// requested frameworks. The scan configuration is opaque to the caller.
// Implementations classify failures via domain.AnalysisError so the
// coordinator can decide between retry and immediate failure.
type Analyzer interface {
	Analyze(ctx context.Context, frameworks []string, scanConfig domain.ScanConfig) ([]domain.CandidateFinding, error)
}

// Resource is the inventory entry shape the rule analyzer understands inside
// a scan configuration's "resources" list.
type Resource struct {
	Type   string                 `json:"type"`
	ID     string                 `json:"id"`
	Config map[string]interface{} `json:"config"`
}

type scanConfigPayload struct {
	Resources []Resource `json:"resources"`
}

func decodeResources(scanConfig domain.ScanConfig) ([]Resource, error) {
	if len(scanConfig) == 0 {
		return nil, nil
	}
	var payload scanConfigPayload
	if err := json.Unmarshal(scanConfig, &payload); err != nil {
		return nil, err
	}
	return payload.Resources, nil
}
