package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcoot/gamesync/internal/model"
	"github.com/mcoot/gamesync/internal/services/matchmaking"
	redisstore "github.com/mcoot/gamesync/internal/store/redis"
)

// Config holds CLI configuration
type Config struct {
	StorageType  string
	RedisURL     string
	KeyPrefix    string
	UserFile     string
	MatchTimeout time.Duration
	Output       string
	Verbose      bool
}

// LoadEnvFile reads a .env file into the environment. A missing file is fine;
// variables already set win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	return &Config{
		StorageType:  getEnvOrDefault("STORAGE_TYPE", "redis"),
		RedisURL:     getEnvOrDefault("REDIS_URL", redisstore.DefaultConfig().URL),
		KeyPrefix:    getEnvOrDefault("GAMESYNC_KEY_PREFIX", redisstore.DefaultConfig().KeyPrefix),
		UserFile:     getEnvOrDefault("GAMESYNC_USER_FILE", defaultUserFile()),
		MatchTimeout: getDurationOrDefault("GAMESYNC_MATCH_TIMEOUT", matchmaking.DefaultConfig().Timeout),
		Output:       "text",
		Verbose:      false,
	}
}

// RedisConfig builds the store settings from the CLI configuration. CLI
// clients leave sweeping to the janitor.
func (c *Config) RedisConfig() redisstore.Config {
	rc := redisstore.DefaultConfig()
	rc.URL = c.RedisURL
	rc.KeyPrefix = c.KeyPrefix
	rc.SweepInterval = 0
	return rc
}

// LoadUser returns the identity saved by an earlier sign-in, or nil
func (c *Config) LoadUser() (*model.User, error) {
	data, err := os.ReadFile(c.UserFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Not signed in is fine
		}
		return nil, err
	}

	var user model.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUser persists the signed-in identity for later invocations
func (c *Config) SaveUser(user *model.User) error {
	dir := filepath.Dir(c.UserFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return os.WriteFile(c.UserFile, data, 0600)
}

// ClearUser forgets the saved identity
func (c *Config) ClearUser() error {
	if err := os.Remove(c.UserFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func defaultUserFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gamesync/user.json"
	}
	return filepath.Join(home, ".gamesync", "user.json")
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}
