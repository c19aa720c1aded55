// Package config provides configuration types and loading for keeper.
package config

// Config is the root configuration struct.
type Config struct {
	Telegram  TelegramConfig   `json:"telegram"`
	Agent     AgentConfig      `json:"agent"`
	KB        KBConfig         `json:"kb"`
	Retrieval RetrievalConfig  `json:"retrieval"`
	Storage   StorageConfig    `json:"storage"`
	Channels  []ChannelProfile `json:"channels"`
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token          string  `json:"token" envconfig:"TOKEN"`
	AllowedUserIDs []int64 `json:"allowedUserIds" envconfig:"ALLOWED_USER_IDS"`
	PollTimeoutSec int     `json:"pollTimeoutSec" envconfig:"POLL_TIMEOUT_SEC"`
}

// AgentConfig configures the reasoning-agent CLI and the per-role models.
type AgentConfig struct {
	Binary       string `json:"binary" envconfig:"BINARY"`
	WorkDir      string `json:"workDir" envconfig:"WORK_DIR"`
	MainModel    string `json:"mainModel" envconfig:"MAIN_MODEL"`
	PlannerModel string `json:"plannerModel" envconfig:"PLANNER_MODEL"`
	FilterModel  string `json:"filterModel" envconfig:"FILTER_MODEL"`
	UpdaterModel string `json:"updaterModel" envconfig:"UPDATER_MODEL"`
	TimeoutSec   int    `json:"timeoutSec" envconfig:"TIMEOUT_SEC"`
}

// KBConfig locates the knowledge base and its search tool.
type KBConfig struct {
	Root          string   `json:"root" envconfig:"ROOT"`
	RecentDir     string   `json:"recentDir" envconfig:"RECENT_DIR"`
	RecentDays    int      `json:"recentDays" envconfig:"RECENT_DAYS"`
	SearchCommand string   `json:"searchCommand" envconfig:"SEARCH_COMMAND"`
	SearchArgs    []string `json:"searchArgs"`
}

// RetrievalConfig tunes the pre-turn lookup pipeline.
type RetrievalConfig struct {
	Enabled       bool `json:"enabled" envconfig:"ENABLED"`
	PreviewBudget int  `json:"previewBudget" envconfig:"PREVIEW_BUDGET"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	DBPath string `json:"dbPath" envconfig:"DB_PATH"`
}

// ChannelProfile configures one recognized chat. Messages from chats without
// a profile are dropped.
type ChannelProfile struct {
	Name            string   `json:"name"`
	ChatID          int64    `json:"chatId"`
	SystemPrompt    string   `json:"systemPrompt"`
	EnableRetrieval bool     `json:"enableRetrieval"`
	EnableKBUpdate  bool     `json:"enableKbUpdate"`
	DisallowedTools []string `json:"disallowedTools"`
}

// Profile returns the channel profile for a chat, or nil if unknown.
func (c *Config) Profile(chatID int64) *ChannelProfile {
	for i := range c.Channels {
		if c.Channels[i].ChatID == chatID {
			return &c.Channels[i]
		}
	}
	return nil
}

// DefaultConfig returns a config with workable defaults for everything that
// has one. Token, agent binary and channel profiles have no default.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeoutSec: 50,
		},
		Agent: AgentConfig{
			Binary:       "claude",
			PlannerModel: "haiku",
			FilterModel:  "haiku",
			UpdaterModel: "sonnet",
			TimeoutSec:   600,
		},
		KB: KBConfig{
			RecentDays: 7,
		},
		Retrieval: RetrievalConfig{
			Enabled:       true,
			PreviewBudget: 500,
		},
		Storage: StorageConfig{
			DBPath: "~/.keeper/sessions.db",
		},
	}
}
