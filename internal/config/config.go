package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

const (
	envVarMode            = "PAIRCHAT_MODE"
	envVarListenAddr      = "PAIRCHAT_LISTEN_ADDR"
	envVarPublicBaseURL   = "PAIRCHAT_PUBLIC_BASE_URL"
	envVarStaticDir       = "PAIRCHAT_STATIC_DIR"
	envVarMediaDir        = "PAIRCHAT_MEDIA_DIR"
	envVarLogFormat       = "LOG_FORMAT"
	envVarLogLevel        = "LOG_LEVEL"
	envVarShutdownTimeout = "SHUTDOWN_TIMEOUT"

	envVarJWTSecret      = "JWT_SECRET"
	envVarTokenTTL       = "TOKEN_TTL"
	envVarBcryptCost     = "BCRYPT_COST"
	envVarMaxUploadBytes = "MAX_UPLOAD_BYTES"

	envVarRingTimeout          = "CALL_RING_TIMEOUT"
	envVarICECandidatePoolSize = "ICE_CANDIDATE_POOL_SIZE"

	envVarWSMaxMessageBytes   = "WS_MAX_MESSAGE_BYTES"
	envVarWSMessagesPerSecond = "WS_MESSAGES_PER_SECOND"
	envVarWSPingInterval      = "WS_PING_INTERVAL"
	envVarWSIdleTimeout       = "WS_IDLE_TIMEOUT"
	envVarWSSendQueue         = "WS_SEND_QUEUE"

	DefaultListenAddr      = ":8080"
	DefaultPublicBaseURL   = "http://localhost:8080"
	DefaultStaticDir       = "./static"
	DefaultMediaDir        = "./data/media"
	DefaultShutdownTimeout = 5 * time.Second
	DefaultMode            = ModeDev

	DefaultTokenTTL       = 24 * time.Hour
	DefaultBcryptCost     = 10
	DefaultMaxUploadBytes = int64(10 << 20)

	DefaultRingTimeout          = 45 * time.Second
	DefaultICECandidatePoolSize = 10

	DefaultWSMaxMessageBytes   = int64(64 * 1024)
	DefaultWSMessagesPerSecond = 50
	DefaultWSPingInterval      = 20 * time.Second
	DefaultWSIdleTimeout       = 60 * time.Second
	DefaultWSSendQueue         = 64

	devJWTSecret = "pairchat-dev-secret"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

type WebSocketConfig struct {
	MaxMessageBytes   int64
	MessagesPerSecond int
	PingInterval      time.Duration
	IdleTimeout       time.Duration
	SendQueue         int
}

type Config struct {
	Mode            Mode
	ListenAddr      string
	PublicBaseURL   string
	StaticDir       string
	MediaDir        string
	LogFormat       LogFormat
	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration

	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	MaxUploadBytes int64

	RingTimeout          time.Duration
	ICEServers           []webrtc.ICEServer
	ICECandidatePoolSize uint8

	WebSocket WebSocketConfig
}

// MediaURL is the public prefix stored objects are served under.
func (c Config) MediaURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/media"
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	fs := flag.NewFlagSet("pairchat", flag.ContinueOnError)

	mode := fs.String("mode", envOrDefault(lookup, envVarMode, string(DefaultMode)), "dev or prod")
	listenAddr := fs.String("listen-addr", envOrDefault(lookup, envVarListenAddr, DefaultListenAddr), "HTTP listen address")
	publicBaseURL := fs.String("public-base-url", envOrDefault(lookup, envVarPublicBaseURL, DefaultPublicBaseURL), "externally reachable base URL")
	staticDir := fs.String("static-dir", envOrDefault(lookup, envVarStaticDir, DefaultStaticDir), "directory served at /")
	mediaDir := fs.String("media-dir", envOrDefault(lookup, envVarMediaDir, DefaultMediaDir), "directory for uploaded images")
	logFormat := fs.String("log-format", envOrDefault(lookup, envVarLogFormat, ""), "console or json (default depends on mode)")
	logLevel := fs.String("log-level", envOrDefault(lookup, envVarLogLevel, "info"), "zerolog level")
	jwtSecret := fs.String("jwt-secret", envOrDefault(lookup, envVarJWTSecret, ""), "HS256 secret for access tokens")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	tokenTTL, err := envDurationOrDefault(lookup, envVarTokenTTL, DefaultTokenTTL)
	if err != nil {
		return Config{}, err
	}
	ringTimeout, err := envDurationOrDefault(lookup, envVarRingTimeout, DefaultRingTimeout)
	if err != nil {
		return Config{}, err
	}
	bcryptCost, err := envIntOrDefault(lookup, envVarBcryptCost, DefaultBcryptCost)
	if err != nil {
		return Config{}, err
	}
	maxUpload, err := envIntOrDefault(lookup, envVarMaxUploadBytes, int(DefaultMaxUploadBytes))
	if err != nil {
		return Config{}, err
	}
	poolSize, err := envIntOrDefault(lookup, envVarICECandidatePoolSize, DefaultICECandidatePoolSize)
	if err != nil {
		return Config{}, err
	}

	wsMaxMessage, err := envIntOrDefault(lookup, envVarWSMaxMessageBytes, int(DefaultWSMaxMessageBytes))
	if err != nil {
		return Config{}, err
	}
	wsRate, err := envIntOrDefault(lookup, envVarWSMessagesPerSecond, DefaultWSMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	wsPing, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	wsIdle, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsQueue, err := envIntOrDefault(lookup, envVarWSSendQueue, DefaultWSSendQueue)
	if err != nil {
		return Config{}, err
	}

	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "graceful shutdown timeout")
	fs.DurationVar(&tokenTTL, "token-ttl", tokenTTL, "access token lifetime")
	fs.DurationVar(&ringTimeout, "ring-timeout", ringTimeout, "how long a call rings before it is missed (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      strings.TrimSpace(*listenAddr),
		PublicBaseURL:   strings.TrimRight(strings.TrimSpace(*publicBaseURL), "/"),
		StaticDir:       *staticDir,
		MediaDir:        *mediaDir,
		ShutdownTimeout: shutdownTimeout,
		JWTSecret:       *jwtSecret,
		TokenTTL:        tokenTTL,
		BcryptCost:      bcryptCost,
		MaxUploadBytes:  int64(maxUpload),
		RingTimeout:     ringTimeout,
		WebSocket: WebSocketConfig{
			MaxMessageBytes:   int64(wsMaxMessage),
			MessagesPerSecond: wsRate,
			PingInterval:      wsPing,
			IdleTimeout:       wsIdle,
			SendQueue:         wsQueue,
		},
	}

	if cfg.Mode, err = parseMode(*mode); err != nil {
		return Config{}, err
	}
	rawFormat := *logFormat
	if rawFormat == "" {
		rawFormat = defaultLogFormatForMode(cfg.Mode)
	}
	if cfg.LogFormat, err = parseLogFormat(rawFormat); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(*logLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid %s %q: %w", envVarLogLevel, *logLevel, err)
	}

	if cfg.JWTSecret == "" {
		if cfg.Mode == ModeProd {
			return Config{}, fmt.Errorf("%s is required in %s mode", envVarJWTSecret, ModeProd)
		}
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarTokenTTL)
	}
	if cfg.RingTimeout < 0 {
		return Config{}, fmt.Errorf("%s must not be negative", envVarRingTimeout)
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("%s must be positive", envVarMaxUploadBytes)
	}
	if poolSize < 0 || poolSize > 255 {
		return Config{}, fmt.Errorf("%s must be between 0 and 255", envVarICECandidatePoolSize)
	}
	cfg.ICECandidatePoolSize = uint8(poolSize)
	if cfg.WebSocket.MaxMessageBytes <= 0 || cfg.WebSocket.MessagesPerSecond <= 0 || cfg.WebSocket.SendQueue <= 0 {
		return Config{}, fmt.Errorf("websocket limits must be positive")
	}
	if cfg.WebSocket.PingInterval >= cfg.WebSocket.IdleTimeout {
		return Config{}, fmt.Errorf("%s must be shorter than %s", envVarWSPingInterval, envVarWSIdleTimeout)
	}

	cfg.ICEServers, err = parseICEServersFromValues(
		envOrDefault(lookup, envICEServersJSON, ""),
		envOrDefault(lookup, envStunURLs, ""),
		envOrDefault(lookup, envTurnURLs, ""),
		envOrDefault(lookup, envTurnUsername, ""),
		envOrDefault(lookup, envTurnCredential, ""),
	)
	if err != nil {
		return Config{}, err
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultICEServers()
	}

	return cfg, nil
}

// PeerConnectionConfig is what both call peers should configure their
// connections with.
func (c Config) PeerConnectionConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers:           c.ICEServers,
		ICECandidatePoolSize: c.ICECandidatePoolSize,
	}
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q", envVarMode, raw)
	}
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatConsole)
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatConsole), "text":
		return LogFormatConsole, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q", envVarLogFormat, raw)
	}
}
