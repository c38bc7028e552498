package risk

// LivenessStatus is the provider's verdict for a liveness session
type LivenessStatus string

const (
	LivenessSucceeded  LivenessStatus = "SUCCEEDED"
	LivenessFailed     LivenessStatus = "FAILED"
	LivenessInProgress LivenessStatus = "IN_PROGRESS"
	LivenessCreated    LivenessStatus = "CREATED"
	LivenessExpired    LivenessStatus = "EXPIRED"
)

// IsLive reports whether the session proved a live subject.
func (s LivenessStatus) IsLive() bool {
	return s == LivenessSucceeded
}

// LivenessResult is the outcome of a liveness session.
type LivenessResult struct {
	SessionID  string         `json:"session_id"`
	Confidence float64        `json:"confidence"`
	Status     LivenessStatus `json:"status"`
}

// FaceMatch is the outcome of comparing a reference face with a probe.
type FaceMatch struct {
	Similarity float64 `json:"similarity"`
	Matched    bool    `json:"matched"`
}

// BiometricResult combines liveness with face similarity.
type BiometricResult struct {
	Liveness  LivenessResult `json:"liveness"`
	FaceMatch FaceMatch      `json:"face_match"`
	Passed    bool           `json:"passed"`
}
