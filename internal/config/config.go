package config

import (
	"encoding/base64"
	"fmt"
)

type Config struct {
	ServerAddr      string
	DatabaseDSN     string
	SigningKey      []byte
	AllowedOrigins  []string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, vapidPublicKey, vapidPrivateKey, vapidSubject string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	// VAPID keys come as a pair or not at all. Push delivery is disabled
	// when they are absent.
	if (vapidPublicKey == "") != (vapidPrivateKey == "") {
		return nil, fmt.Errorf("VAPID keys must be provided together")
	}

	return &Config{
		ServerAddr:      serverAddr,
		DatabaseDSN:     databaseDSN,
		SigningKey:      signingKey,
		AllowedOrigins:  allowedOrigins,
		VAPIDPublicKey:  vapidPublicKey,
		VAPIDPrivateKey: vapidPrivateKey,
		VAPIDSubject:    vapidSubject,
	}, nil
}

// PushEnabled reports whether web push delivery is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}
