package roomhandler

import "roomrelay/internal/services/relay"

type RoomDetailsResponse struct {
	Name    string       `json:"name"    example:"lobby"`
	Members []relay.Peer `json:"members"`
} // @name RoomDetailsResponse

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
	Rooms  int    `json:"rooms"  example:"3"`
} // @name HealthResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListRoomsQuery struct {
	Limit  int `form:"limit,default=50" binding:"gte=0,lte=500"`
	Offset int `form:"offset,default=0" binding:"gte=0"`
} // @name ListRoomsQuery
