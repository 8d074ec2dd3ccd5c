package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nextdooroldwang/sprite-house/internal/api/http/converter"
	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/registry"
	"github.com/nextdooroldwang/sprite-house/internal/relay"
	"github.com/nextdooroldwang/sprite-house/lib/logger/sl"
)

type RoomController struct {
	registry *registry.Registry
	relay    *relay.Relay
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(reg *registry.Registry, rel *relay.Relay, log *slog.Logger) *RoomController {
	return &RoomController{
		registry: reg,
		relay:    rel,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// GetRoom serves the read-only room query surface.
func (c *RoomController) GetRoom(ctx *gin.Context) {
	roomID := domain.NormalizeRoomID(ctx.Param("roomID"))
	info := c.registry.Info(roomID)
	ctx.JSON(http.StatusOK, converter.RoomInfoToAPI(info))
}

// Connect upgrades the request to a WebSocket signaling connection. The
// connection id is assigned here and lives exactly as long as the socket.
func (c *RoomController) Connect(ctx *gin.Context) {
	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	connID := uuid.New().String()
	client := newWSClient(connID, conn, c.relay, c.log)

	c.relay.Register(connID, client)
	c.log.Info("connection established", slog.String("conn_id", connID))

	// Hand the client its connection id before anything else can be queued.
	if env, err := domain.NewEvent(domain.MsgConnected, domain.Connected{ID: connID}); err == nil {
		client.Send(env)
	}

	go client.writePump()
	client.readPump()
}
