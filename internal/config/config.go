package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string         `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	CORS     CORSConfig     `yaml:"cors"`
	Room     RoomConfig     `yaml:"room"`
	Presence PresenceConfig `yaml:"presence"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type RoomConfig struct {
	MaxUsers int     `yaml:"max_users" env:"MAX_USERS_PER_ROOM"`
	SpawnX   float64 `yaml:"spawn_x"`
	SpawnY   float64 `yaml:"spawn_y"`
}

type PresenceConfig struct {
	MoveInterval      time.Duration `yaml:"move_interval"`
	InterpolateWindow time.Duration `yaml:"interpolate_window"`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":3301"
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"http://localhost:3300"}
	}
	if c.Room.MaxUsers == 0 {
		c.Room.MaxUsers = 4
	}
	if c.Room.SpawnX == 0 && c.Room.SpawnY == 0 {
		c.Room.SpawnX = 400
		c.Room.SpawnY = 300
	}
	if c.Presence.MoveInterval == 0 {
		c.Presence.MoveInterval = 50 * time.Millisecond
	}
	if c.Presence.InterpolateWindow == 0 {
		c.Presence.InterpolateWindow = 100 * time.Millisecond
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{
			"stun:stun.l.google.com:19302",
			"stun:stun1.l.google.com:19302",
		}
	}
}
