package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/connection"
	"github.com/rickgao/realtime-client/internal/protocol"
	"github.com/rickgao/realtime-client/internal/transport"
	"github.com/rickgao/realtime-client/internal/version"
)

// ErrNoAppKey is returned by New when Config.AppKey is empty.
var ErrNoAppKey = errors.New("app key is required")

// Config configures a Client.
type Config struct {
	AppKey   string
	Host     string
	Port     int
	Insecure bool // ws:// instead of wss://

	Connection connection.Config
	Transport  transport.WebSocketConfig // URL is derived from the fields above
}

// FromConfig converts file configuration. cfg should have defaults applied.
func FromConfig(cfg *config.ClientConfig) Config {
	ws := transport.DefaultWebSocketConfig()
	ws.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	ws.WriteTimeout = cfg.Connection.WriteTimeout
	ws.PingInterval = cfg.Connection.PingInterval
	ws.PongTimeout = cfg.Connection.PongTimeout

	return Config{
		AppKey:   cfg.Pusher.AppKey,
		Host:     cfg.Pusher.Host,
		Port:     cfg.Pusher.Port,
		Insecure: cfg.Pusher.Insecure,
		Connection: connection.Config{
			ReconnectInitialDelay: cfg.Connection.ReconnectInitialDelay,
			ReconnectStep:         cfg.Connection.ReconnectStep,
			ReconnectMaxDelay:     cfg.Connection.ReconnectMaxDelay,
			ResetBackoffOnConnect: cfg.Connection.ResetBackoffOnConnect,
		},
		Transport: ws,
	}
}

// URL returns the connect URL,
// ws[s]://host:port/app/{key}?client=...&protocol=7&version=...
func (c Config) URL() string {
	scheme := "wss"
	if c.Insecure {
		scheme = "ws"
	}

	host := c.Host
	if c.Port != 0 {
		host = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	}

	u := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   "/app/" + c.AppKey,
		RawQuery: url.Values{
			"protocol": {strconv.Itoa(protocol.Version)},
			"client":   {version.ClientName},
			"version":  {version.Version},
		}.Encode(),
	}
	return u.String()
}

func (c Config) validate() error {
	if c.AppKey == "" {
		return ErrNoAppKey
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func (c Config) webSocketConfig() transport.WebSocketConfig {
	ws := c.Transport
	ws.URL = c.URL()
	if ws.Header == nil {
		ws.Header = make(http.Header)
	} else {
		ws.Header = ws.Header.Clone()
	}
	ws.Header.Set("User-Agent", version.UserAgent())
	return ws
}
