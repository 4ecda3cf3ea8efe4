package statusserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the local read-only HTTP view of a running migration:
// GET /healthz, GET /status, GET /ws.
type Server struct {
	engine *gin.Engine
	hub    *Hub
	logger *logrus.Logger
}

// New builds a Server reporting through hub.
func New(hub *Hub, logger *logrus.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, hub: hub, logger: logger}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/status", s.handleStatus)
	engine.GET("/ws", s.handleWebsocket)
	return s
}

// Run starts serving on addr, blocking until the server stops or errors.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Snapshot())
}

// handleWebsocket upgrades the connection and streams every subsequent
// event until the client disconnects, mirroring
// internal/api/user_handlers.go's SubscribeNotifications.
func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Error("status websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			s.logger.WithError(err).Debug("status websocket write failed, disconnecting")
			break
		}
	}
}
