package enforcer

import "github.com/lowdata/blockd/internal/rule"

// Routes served by the enforcer daemon.
const (
	routeVersion = "/v1/version"
	routeRules   = "/v1/rules"
)

// VersionResponse is the reply to the version probe.
type VersionResponse struct {
	Version string `json:"version"`
}

// ApplyRequest carries a full replacement rule set. Applies are never
// incremental: the daemon translates exactly what it receives.
type ApplyRequest struct {
	Rules []rule.Dict `json:"rules"`
}

// ApplyResponse reports the outcome of an apply.
type ApplyResponse struct {
	OK         bool   `json:"ok"`
	Directives int    `json:"directives"`
	Error      string `json:"error,omitempty"`
}

// RemoveResponse reports the outcome of removing all rules.
type RemoveResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
