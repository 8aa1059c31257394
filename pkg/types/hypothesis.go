package types

// Hypothesis is a single weighted, categorized fact inferred about the user.
// Weight is the uniqueness/importance score (1-5) of the message it came from.
type Hypothesis struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// PersonaSnapshot is the biography derived from the full hypothesis
// collection at a given checkpoint generation.
type PersonaSnapshot struct {
	Biography  string `json:"biography"`
	Generation int    `json:"generation"`
}
