package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	Bot    BotConfig
	Panel  PanelConfig
	VPN    VPNConfig
}

type ServerConfig struct {
	Port int
	Env  string // "development", "production"
	URL  string // public base URL of this service
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token      string
	Username   string
	WebhookURL string
	AdminID    int64
}

// PanelConfig holds connection settings for the 3x-ui panel.
type PanelConfig struct {
	Host       string
	Port       string
	Path       string
	Username   string
	Password   string
	InboundID  int
	SessionTTL time.Duration
}

// VPNConfig holds client provisioning defaults and link-building domains.
type VPNConfig struct {
	PrimaryDomain    string
	PanelDomain      string
	SubscriptionPort string
	DeviceLimit      int
	TrafficLimitGB   int64
	CountryCode      string // expected country of the VPN exit
	ISP              string // expected ISP substring of the VPN exit
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("XUI_HOST", "3x-ui")
	viper.SetDefault("XUI_PORT", "2053")
	viper.SetDefault("XUI_INBOUND_ID", 1)
	viper.SetDefault("XUI_SESSION_TTL", "1h")
	viper.SetDefault("VPN_SUBSCRIPTION_PORT", "2096")
	viper.SetDefault("VPN_DEFAULT_DEVICE_LIMIT", 2)
	viper.SetDefault("VPN_DEFAULT_TRAFFIC_LIMIT", 0)
	viper.SetDefault("VPN_COUNTRY_CODE", "US")
	viper.SetDefault("VPN_ISP", "Hetzner")

	sessionTTL, err := time.ParseDuration(viper.GetString("XUI_SESSION_TTL"))
	if err != nil || sessionTTL <= 0 {
		sessionTTL = time.Hour
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: viper.GetInt("APP_PORT"),
			Env:  viper.GetString("APP_ENV"),
			URL:  strings.TrimRight(viper.GetString("APP_URL"), "/"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:      viper.GetString("BOT_TOKEN"),
			Username:   strings.TrimPrefix(viper.GetString("BOT_USERNAME"), "@"),
			WebhookURL: viper.GetString("BOT_WEBHOOK_URL"),
			AdminID:    viper.GetInt64("BOT_ADMIN_ID"),
		},
		Panel: PanelConfig{
			Host:       viper.GetString("XUI_HOST"),
			Port:       viper.GetString("XUI_PORT"),
			Path:       strings.Trim(viper.GetString("XUI_PATH"), "/"),
			Username:   viper.GetString("XUI_USERNAME"),
			Password:   viper.GetString("XUI_PASSWORD"),
			InboundID:  viper.GetInt("XUI_INBOUND_ID"),
			SessionTTL: sessionTTL,
		},
		VPN: VPNConfig{
			PrimaryDomain:    viper.GetString("VPN_PRIMARY_DOMAIN"),
			PanelDomain:      viper.GetString("VPN_PANEL_DOMAIN"),
			SubscriptionPort: viper.GetString("VPN_SUBSCRIPTION_PORT"),
			DeviceLimit:      viper.GetInt("VPN_DEFAULT_DEVICE_LIMIT"),
			TrafficLimitGB:   viper.GetInt64("VPN_DEFAULT_TRAFFIC_LIMIT"),
			CountryCode:      strings.ToUpper(viper.GetString("VPN_COUNTRY_CODE")),
			ISP:              viper.GetString("VPN_ISP"),
		},
	}

	if cfg.Bot.Token == "" {
		log.Println("WARNING: BOT_TOKEN is not set")
	}
	if cfg.Panel.Username == "" || cfg.Panel.Password == "" {
		log.Println("WARNING: XUI_USERNAME/XUI_PASSWORD are not set")
	}

	return cfg, nil
}

// BaseURL builds the panel base URL including the optional path prefix.
func (p *PanelConfig) BaseURL() string {
	base := fmt.Sprintf("http://%s:%s", p.Host, p.Port)
	if p.Path != "" {
		base += "/" + p.Path
	}
	return base
}
