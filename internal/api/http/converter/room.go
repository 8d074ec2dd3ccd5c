package converter

import (
	"github.com/nextdooroldwang/sprite-house/internal/domain"
	"github.com/nextdooroldwang/sprite-house/internal/registry"
)

type RoomInfoResponse struct {
	Exists       bool                 `json:"exists"`
	Users        []domain.Participant `json:"users"`
	MaxUsers     int                  `json:"maxUsers"`
	CurrentUsers int                  `json:"currentUsers,omitempty"`
}

func RoomInfoToAPI(info registry.Info) *RoomInfoResponse {
	return &RoomInfoResponse{
		Exists:       info.Exists,
		Users:        info.Users,
		MaxUsers:     info.MaxUsers,
		CurrentUsers: info.CurrentUsers,
	}
}
