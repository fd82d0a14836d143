package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/meetsignal/internal/app/orch"
	"github.com/dkeye/meetsignal/internal/config"
	"github.com/dkeye/meetsignal/internal/domain"
)

type Admin struct {
	Orch *orch.Orchestrator
}

func (a *Admin) Meetings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"meetings": a.Orch.Meetings()})
}

func (a *Admin) Participants(c *gin.Context) {
	id := c.Param("id")
	if err := domain.ValidateID("meeting", id); err != nil {
		writeError(c, "participants", err)
		return
	}
	ps := a.Orch.Participants(domain.MeetingID(id))
	hostID, _ := a.Orch.Rooms.HostOf(domain.MeetingID(id))
	c.JSON(http.StatusOK, gin.H{"meetingId": id, "hostId": hostID, "participants": ps})
}

// ICEServers converts the configured STUN/TURN list into the shape
// RTCPeerConnection accepts.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		srv := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			srv.Username = s.Username
			srv.Credential = s.Credential
		}
		out = append(out, srv)
	}
	return out
}

func iceServersHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": ICEServers(cfg.ICEServers)})
	}
}
