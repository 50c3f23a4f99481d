package models

// ModelType represents the Gemini model used for summaries
type ModelType string

const (
	// ModelFlash represents Gemini 2.0 Flash model
	// Default model for meeting summaries
	// See current rate limits: https://ai.google.dev/pricing
	ModelFlash ModelType = "gemini-2.0-flash"
)

// String returns string representation of ModelType
func (m ModelType) String() string {
	return string(m)
}

// GeminiConfig holds the Gemini API settings
type GeminiConfig struct {
	APIKey string
	Model  ModelType
}

// BotConfig represents bot configuration
type BotConfig struct {
	// Matrix settings
	Homeserver  string
	UserID      string
	AccessToken string
	AutoJoin    bool

	// Gemini API settings
	Gemini GeminiConfig

	// Meeting settings
	MeetbotID           string   // Identity of the bot announcing meeting logs
	IgnoredParticipants []string // Never mentioned in the summary reply
	MeetingsDirectory   string   // Archive root, empty disables archiving

	// App settings
	LogLevel      string
	Environment   string
	MetricsListen string
}

// ArchiveEnabled reports whether summaries are written to disk
func (c *BotConfig) ArchiveEnabled() bool {
	return c.MeetingsDirectory != ""
}
