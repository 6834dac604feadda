package ws

import (
	"encoding/json"
	"sync"
	"time"

	"fvgbot/internal/logger"
	"fvgbot/internal/models"

	"github.com/gorilla/websocket"
)

type Client struct {
	url          string
	log          *logger.Logger
	conn         *websocket.Conn
	writeMu      sync.Mutex
	tickers      chan models.Ticker
	stopCh       chan struct{}
	stopOnce     sync.Once
	symbol       string
	topics       []string
	reconnectMin time.Duration
	reconnectMax time.Duration
	pingInterval time.Duration
}

type Message struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Op    string          `json:"op"`
	Data  json.RawMessage `json:"data"`
}

type SubscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}
