package model

// PatternCount is one row of the repetition frequency table.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// BoostParameters echoes the repetition settings an engine runs with.
type BoostParameters struct {
	MinRepetitions int     `json:"min_repetitions"`
	BoostFactor    float64 `json:"boost_factor"`
	MaxBoost       float64 `json:"max_boost"`
}

// RepetitionStats summarizes the engine's pattern frequency table.
type RepetitionStats struct {
	Enabled             bool            `json:"enabled"`
	TotalUniquePatterns int             `json:"total_unique_patterns"`
	RepeatedPatterns    int             `json:"repeated_patterns"`
	MaxRepetitions      int             `json:"max_repetitions"`
	AvgRepetitions      float64         `json:"avg_repetitions"`
	TopPatterns         []PatternCount  `json:"top_patterns"`
	BoostParameters     BoostParameters `json:"boost_parameters"`
}
