// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/ScriptDeskMCP/internal/services"
	"github.com/Corphon/ScriptDeskMCP/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 生产环境应做更严格的来源检查
		return true
	},
}

// wsClient 单个订阅连接
type wsClient struct {
	conn         *websocket.Conn
	screenplayID string
	send         chan []byte
}

// EventHub 把状态存储的变更事件推送给按剧本订阅的WebSocket客户端
type EventHub struct {
	mutex   sync.RWMutex
	clients map[string]map[*wsClient]bool // screenplayID -> clients
	logger  *utils.Logger
}

// NewEventHub 创建事件推送中心
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]map[*wsClient]bool),
		logger:  utils.GetLogger(),
	}
}

// Broadcast 作为存储观察者注册，变更提交后推送给该剧本的全部订阅者
func (hub *EventHub) Broadcast(event services.StoreEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		hub.logger.Warnf("序列化存储事件失败: %v", err)
		return
	}

	hub.mutex.RLock()
	defer hub.mutex.RUnlock()

	for client := range hub.clients[event.ScreenplayID] {
		select {
		case client.send <- data:
		default:
			// 发送队列已满的慢客户端直接跳过
		}
	}
}

func (hub *EventHub) register(client *wsClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if hub.clients[client.screenplayID] == nil {
		hub.clients[client.screenplayID] = make(map[*wsClient]bool)
	}
	hub.clients[client.screenplayID][client] = true
}

func (hub *EventHub) unregister(client *wsClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if set, exists := hub.clients[client.screenplayID]; exists {
		if set[client] {
			delete(set, client)
			close(client.send)
		}
		if len(set) == 0 {
			delete(hub.clients, client.screenplayID)
		}
	}
}

// HandleWebSocket 升级连接并订阅指定剧本的变更事件
func (hub *EventHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.logger.Warnf("WebSocket升级失败: %v", err)
		return
	}

	client := &wsClient{
		conn:         conn,
		screenplayID: c.Param("id"),
		send:         make(chan []byte, 64),
	}
	hub.register(client)

	go hub.writeLoop(client)
	hub.readLoop(client)
}

func (hub *EventHub) writeLoop(client *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (hub *EventHub) readLoop(client *wsClient) {
	defer hub.unregister(client)

	client.conn.SetReadLimit(1024)
	client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
