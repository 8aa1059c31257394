// Package types defines the core data structures shared by the secretary
// pipeline: normalized mail messages, persona hypotheses inferred from them,
// and the memos extracted for the memoboard.
package types

// Hypothesis category constants. A hypothesis is filed under exactly one of
// these persona facets.
const (
	CategoryBackground          = "background"
	CategoryKeyMilestones       = "key_milestones"
	CategoryCulturalIdentity    = "cultural_identity"
	CategoryPersonality         = "personality"
	CategoryVisionValues        = "vision_values"
	CategoryStrengthsWeaknesses = "strengths_weaknesses"
	CategoryInterests           = "interests"
	CategorySpecialty           = "specialty"
	CategoryProfession          = "profession"
)

// ValidHypothesisCategories is a slice of all hypothesis categories in prompt order.
var ValidHypothesisCategories = []string{
	CategoryBackground,
	CategoryKeyMilestones,
	CategoryCulturalIdentity,
	CategoryPersonality,
	CategoryVisionValues,
	CategoryStrengthsWeaknesses,
	CategoryInterests,
	CategorySpecialty,
	CategoryProfession,
}

// Memo category constants. A memo may belong to several of these at once.
const (
	MemoHobbies           = "hobbies"
	MemoInterestedTopics  = "interested_topics"
	MemoProfession        = "profession"
	MemoPhysicalWellbeing = "physical_wellbeing"
	MemoFinancial         = "financial"
	MemoHousehold         = "household"
	MemoFamily            = "family"
	MemoRelationships     = "relationships"
	MemoFriendsSocial     = "friends_social"
)

// ValidMemoCategories is a slice of all memoboard categories.
var ValidMemoCategories = []string{
	MemoHobbies,
	MemoInterestedTopics,
	MemoProfession,
	MemoPhysicalWellbeing,
	MemoFinancial,
	MemoHousehold,
	MemoFamily,
	MemoRelationships,
	MemoFriendsSocial,
}

// Hypothesis weight bounds.
const (
	MinWeight = 1
	MaxWeight = 5
)

// IsValidHypothesisCategory checks if the given category is a known persona facet.
func IsValidHypothesisCategory(category string) bool {
	return contains(ValidHypothesisCategories, category)
}

// IsValidMemoCategory checks if the given category is a known memoboard folder.
func IsValidMemoCategory(category string) bool {
	return contains(ValidMemoCategories, category)
}

// IsValidWeight reports whether w lies in [MinWeight, MaxWeight].
func IsValidWeight(w int) bool {
	return w >= MinWeight && w <= MaxWeight
}

// ClampWeight forces w into [MinWeight, MaxWeight].
func ClampWeight(w int) int {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
