package roomhandler

import (
	"net/http"

	"roomrelay/internal/services/relay"

	"github.com/gin-gonic/gin"
)

// Directory is the read-only view of the relay served over REST.
type Directory interface {
	Rooms() []relay.RoomInfo
	Members(room string) ([]relay.Peer, bool)
}

type Handler struct {
	dir Directory
}

func New(dir Directory) *Handler { return &Handler{dir: dir} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/rooms", h.list)
	r.GET("/rooms/:name", h.info)
}

// @Summary		Health check
// @Tags			Ops
// @Success		200	{object}	HealthResponse
// @Router			/healthz [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Rooms: len(h.dir.Rooms())})
}

// @Summary		List rooms
// @Description	Lists rooms with their current member count, sorted by name.
// @Tags			Rooms
// @Param			limit	query		int	false	"Max results (0‑500)"	minimum(0)	maximum(500)	default(50)
// @Param			offset	query		int	false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		relay.RoomInfo
// @Failure		400		{object}	ErrorResponse
// @Router			/rooms [get]
func (h *Handler) list(c *gin.Context) {
	var q ListRoomsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rooms := h.dir.Rooms()
	if q.Offset >= len(rooms) {
		c.JSON(http.StatusOK, []relay.RoomInfo{})
		return
	}
	rooms = rooms[q.Offset:]
	if q.Limit > 0 && q.Limit < len(rooms) {
		rooms = rooms[:q.Limit]
	}
	c.JSON(http.StatusOK, rooms)
}

// @Summary		Get room members
// @Description	Returns the peers currently in a room, in join order.
// @Tags			Rooms
// @Param			name	path		string	true	"Room name"	default(lobby)
// @Success		200		{object}	RoomDetailsResponse
// @Failure		404		{object}	ErrorResponse
// @Router			/rooms/{name} [get]
func (h *Handler) info(c *gin.Context) {
	name := c.Param("name")
	members, ok := h.dir.Members(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room " + name + " not found"})
		return
	}
	c.JSON(http.StatusOK, RoomDetailsResponse{Name: name, Members: members})
}
