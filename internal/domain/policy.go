package domain

// SignPolicyInput is evaluated before a sign request reaches the backend.
type SignPolicyInput struct {
	Backend     BackendKind `json:"backend"`
	KeyID       string      `json:"key_id"`
	Curve       Curve       `json:"curve"`
	PayloadSize int         `json:"payload_size"`
	Principal   string      `json:"principal,omitempty"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}
