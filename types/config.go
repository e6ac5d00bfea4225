package types

// AppConfig represents the application configuration loaded from config file
type AppConfig struct {
	Origin          string `yaml:"origin"`          // backend origin, e.g. https://transfer.example.com
	AnonymousQuota  int    `yaml:"anonymousQuota"`  // max selected items without login
	DownloadDir     string `yaml:"downloadDir"`     // where served temp files are written
	ReadyCooldownMs int    `yaml:"readyCooldownMs"` // delay before the download flow returns to idle
	Listen          string `yaml:"listen"`          // local control API address
	AuthToken       string `yaml:"authToken,omitempty"`
	AnonymousIDPath string `yaml:"anonymousIdPath"`
	NotifySocket    string `yaml:"notifySocket,omitempty"`
	UseNotify       bool   `yaml:"useNotify"`
}

// Config holds runtime overrides from CLI flags
type Config struct {
	Log           string
	UseConfigPath string
	UseOrigin     string
	UseToken      string
	UseListen     string
	UseOutputDir  string
	SkipNotify    bool
	Insecure      bool
}
