package llm

// Role identifies one of the five logical LM configurations the pipeline
// drives. A Role may map to the same or a different physical model;
// usage counters are tracked separately per role.
type Role string

const (
	// RoleConvSimulator drives expert answers and question→query expansion
	// inside KnowledgeCurator dialogues.
	RoleConvSimulator Role = "conv_simulator_lm"
	// RoleQuestionAsker drives writer questions and persona generation.
	RoleQuestionAsker Role = "question_asker_lm"
	// RoleOutlineGen drives outline draft and refinement.
	RoleOutlineGen Role = "outline_gen_lm"
	// RoleArticleGen drives section drafting.
	RoleArticleGen Role = "article_gen_lm"
	// RoleArticlePolish drives lead synthesis and dedup polishing.
	RoleArticlePolish Role = "article_polish_lm"
)

// Roles lists all five roles in a stable order, for iterating usage
// reports or config validation.
var Roles = []Role{
	RoleConvSimulator,
	RoleQuestionAsker,
	RoleOutlineGen,
	RoleArticleGen,
	RoleArticlePolish,
}

// defaultMaxTokens holds the recommended max output tokens per role.
var defaultMaxTokens = map[Role]int64{
	RoleConvSimulator: 500,
	RoleQuestionAsker: 500,
	RoleOutlineGen:    400,
	RoleArticleGen:    700,
	RoleArticlePolish: 4000,
}

// DefaultMaxTokens returns the recommended max output tokens for role, or
// 500 for an unrecognized role.
func DefaultMaxTokens(role Role) int64 {
	if v, ok := defaultMaxTokens[role]; ok {
		return v
	}
	return 500
}
