package models

// Config holds the settings loaded from config.json: database connection
// plus the defaults applied to newly created experiment sessions.
type Config struct {
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	Experiment ExperimentDefaults `json:"experiment"`
}

// ExperimentDefaults are used when a session-create request omits a value.
type ExperimentDefaults struct {
	NumRounds      int     `json:"num_rounds"`       // e.g. 60
	GroupSize      int     `json:"group_size"`       // 3 or 5
	HighFraction   float64 `json:"high_fraction"`    // e.g. 0.70
	ReversalMinGap int     `json:"reversal_min_gap"` // e.g. 8
	ReversalMaxGap int     `json:"reversal_max_gap"` // e.g. 12
	ChoiceSeconds  int     `json:"choice_seconds"`   // CHOICE1/CHOICE2 timer
	BetSeconds     int     `json:"bet_seconds"`      // BET1/BET2 timer
	RevealSeconds  int     `json:"reveal_seconds"`   // fixed REVEAL_OTHERS delay
	ITIMinMillis   int     `json:"iti_min_millis"`   // inter-trial interval range
	ITIMaxMillis   int     `json:"iti_max_millis"`
	PayoffUnit     int     `json:"payoff_unit"`   // e.g. 20 points per stake unit
	BonusDivisor   int     `json:"bonus_divisor"` // bonus score → currency divisor
	BonusPolicy    string  `json:"bonus_policy"`  // "first", "second", "alternate", "random"
}

// FillDefaults replaces zero values with the standard 5-person 60-round task.
func (d *ExperimentDefaults) FillDefaults() {
	if d.NumRounds == 0 {
		d.NumRounds = 60
	}
	if d.GroupSize == 0 {
		d.GroupSize = 5
	}
	if d.HighFraction == 0 {
		d.HighFraction = 0.70
	}
	if d.ReversalMinGap == 0 {
		d.ReversalMinGap = 8
	}
	if d.ReversalMaxGap == 0 {
		d.ReversalMaxGap = 12
	}
	if d.ChoiceSeconds == 0 {
		d.ChoiceSeconds = 10
	}
	if d.BetSeconds == 0 {
		d.BetSeconds = 8
	}
	if d.RevealSeconds == 0 {
		d.RevealSeconds = 4
	}
	if d.ITIMinMillis == 0 {
		d.ITIMinMillis = 1500
	}
	if d.ITIMaxMillis == 0 {
		d.ITIMaxMillis = 3500
	}
	if d.PayoffUnit == 0 {
		d.PayoffUnit = 20
	}
	if d.BonusDivisor == 0 {
		d.BonusDivisor = 100
	}
	if d.BonusPolicy == "" {
		d.BonusPolicy = "random"
	}
}
