package word

// Observation is one recognized word with its acoustic features, as
// reported by the caller-side recognizer.
type Observation struct {
	Word       string  `json:"word"`
	Decibels   float64 `json:"decibels"`
	Confidence float64 `json:"confidence"`
	Pitch      float64 `json:"pitch"`
}

// Assessment is the model's judgement for one observation batch entry.
type Assessment struct {
	Sentiment string  `json:"sentiment"`
	Certainty float64 `json:"certainty"`
	Action    string  `json:"action"`
	Message   string  `json:"message"`
}
