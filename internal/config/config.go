package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

const defaultAPIBase = "http://localhost:8000"

// Config collects the environment-driven settings for the client.
type Config struct {
	WSBaseURL    string
	APIBaseURL   string
	AMQPURL      string
	AMQPExchange string
	OTLPEndpoint string
	OpsAddr      string
	OpsToken     string
	Environment  string
	DebugRoutes  bool
}

// Load reads configuration from the environment, applying defaults.
func Load() Config {
	return Config{
		WSBaseURL:    os.Getenv("GROUP_CHAT_WS_URL"),
		APIBaseURL:   os.Getenv("API_URL"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat.events"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		OpsAddr:      getEnv("OPS_ADDR", ":8083"),
		OpsToken:     os.Getenv("OPS_TOKEN"),
		Environment:  getEnv("ENVIRONMENT", "development"),
		DebugRoutes:  os.Getenv("DEBUG_ROUTES") == "true",
	}
}

// HistoryBaseURL is the base for the REST history collaborator.
func (c Config) HistoryBaseURL() string {
	if c.APIBaseURL != "" {
		return strings.TrimRight(c.APIBaseURL, "/")
	}
	return defaultAPIBase
}

// SocketURL builds the websocket endpoint for a group. Resolution order: the
// configured websocket base, then the API base with the scheme mapped to
// ws/wss, then the localhost default.
func (c Config) SocketURL(groupID, token string) (string, error) {
	if groupID == "" {
		return "", fmt.Errorf("group id is empty")
	}

	base := c.WSBaseURL
	if base == "" {
		base = wsScheme(c.HistoryBaseURL())
	}
	base = strings.TrimRight(base, "/")

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse websocket base %q: %w", base, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/group-chat/ws/group/" + url.PathEscape(groupID)

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func wsScheme(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
