package progression

// Achievement is one grantable badge.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	unlocked func(s *State, wordsLearned int) bool
}

// achievementTable holds every grantable achievement in grant-check order.
// Thresholds are static; grants are recorded by id in State.Achievements.
var achievementTable = []Achievement{
	{
		ID:          "first_conversation",
		Title:       "Breaking the Ice",
		Description: "Finish your first conversation.",
		unlocked: func(s *State, _ int) bool {
			return len(s.Conversations) >= 1
		},
	},
	{
		ID:          "ten_conversations",
		Title:       "Conversationalist",
		Description: "Finish ten conversations.",
		unlocked: func(s *State, _ int) bool {
			return len(s.Conversations) >= 10
		},
	},
	{
		ID:          "level_5",
		Title:       "Rising Star",
		Description: "Reach level 5.",
		unlocked: func(s *State, _ int) bool {
			return s.Level >= 5
		},
	},
	{
		ID:          "level_10",
		Title:       "Polyglot in Training",
		Description: "Reach level 10.",
		unlocked: func(s *State, _ int) bool {
			return s.Level >= 10
		},
	},
	{
		ID:          "streak_3",
		Title:       "Warming Up",
		Description: "Practise three days in a row.",
		unlocked: func(s *State, _ int) bool {
			return s.Streak.Current >= 3
		},
	},
	{
		ID:          "streak_7",
		Title:       "Committed",
		Description: "Practise seven days in a row.",
		unlocked: func(s *State, _ int) bool {
			return s.Streak.Current >= 7
		},
	},
	{
		ID:          "words_25",
		Title:       "Word Collector",
		Description: "Learn 25 words.",
		unlocked: func(_ *State, words int) bool {
			return words >= 25
		},
	},
	{
		ID:          "words_100",
		Title:       "Walking Dictionary",
		Description: "Learn 100 words.",
		unlocked: func(_ *State, words int) bool {
			return words >= 100
		},
	},
}
