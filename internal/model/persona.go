package model

// Persona is a named perspective used to diversify the questions asked
// during knowledge curation. Created once in Stage 1 and never mutated
// afterward.
type Persona struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BasicFactWriter is always the first persona in any run.
var BasicFactWriter = Persona{
	Name:        "Basic fact writer",
	Description: "Basic fact writer focusing on broadly covering the basic facts about the topic.",
}

// Query is a single search query derived from a writer's question.
type Query struct {
	Text string `json:"text"`
}
