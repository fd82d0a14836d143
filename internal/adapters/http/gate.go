package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/meetsignal/internal/app/orch"
	"github.com/dkeye/meetsignal/internal/domain"
)

type gateRequest struct {
	Action    string          `json:"action"`
	MeetingID string          `json:"meetingId"`
	Data      json.RawMessage `json:"data"`
}

type targetData struct {
	TargetUserID string          `json:"targetUserId"`
	Offer        json.RawMessage `json:"offer"`
	Answer       json.RawMessage `json:"answer"`
	Candidate    json.RawMessage `json:"candidate"`
}

type joinData struct {
	UserData json.RawMessage `json:"userData"`
}

type actionFunc func(caller domain.Caller, meeting domain.MeetingID, data json.RawMessage) (gin.H, error)

// Gate is the single dispatch endpoint: POST {action, meetingId, data}.
type Gate struct {
	Orch    *orch.Orchestrator
	Limiter *RateLimiter

	actions map[string]actionFunc
}

func NewGate(o *orch.Orchestrator, limiter *RateLimiter) *Gate {
	g := &Gate{Orch: o, Limiter: limiter}
	g.actions = map[string]actionFunc{
		"join":               g.join,
		"leave":              g.leave,
		"offer":              g.signal(domain.SignalOffer),
		"answer":             g.signal(domain.SignalAnswer),
		"ice-candidate":      g.signal(domain.SignalICECandidate),
		"mute-participant":   g.command(domain.CommandMute),
		"unmute-participant": g.command(domain.CommandUnmute),
		"remove-participant": g.command(domain.CommandRemove),
		"toggle-video":       g.command(domain.CommandToggleVideo),
		"transfer-host":      g.transferHost,
	}
	return g
}

func (g *Gate) Handle(c *gin.Context) {
	caller := callerFrom(c)
	if caller.UserID == "" {
		writeError(c, "", domain.ErrUnauthenticated)
		return
	}

	var req gateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err))
		return
	}
	fn, ok := g.actions[req.Action]
	if !ok {
		writeError(c, req.Action, fmt.Errorf("%w: %q", domain.ErrInvalidAction, req.Action))
		return
	}
	if !g.Limiter.Allow(caller.UserID) {
		writeError(c, req.Action, domain.ErrRateLimited)
		return
	}

	meeting := domain.MeetingID(req.MeetingID)
	resp, err := fn(caller, meeting, req.Data)
	if err != nil {
		log.Debug().Err(err).Str("module", "adapters.http").Str("meeting", req.MeetingID).
			Str("user", string(caller.UserID)).Str("action", req.Action).Msg("dispatch failed")
		writeError(c, req.Action, err)
		return
	}
	if req.Action != "leave" {
		g.Orch.Touch(meeting, caller.UserID)
	}
	resp["success"] = true
	c.JSON(http.StatusOK, resp)
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

func (g *Gate) join(caller domain.Caller, meeting domain.MeetingID, data json.RawMessage) (gin.H, error) {
	var d joinData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	meta := domain.JoinMeta{}
	if len(d.UserData) > 0 && string(d.UserData) != "null" {
		var named struct {
			DisplayName string `json:"displayName"`
			Name        string `json:"name"`
		}
		// userData is opaque; a name is picked up when it is an object
		_ = json.Unmarshal(d.UserData, &named)
		meta.DisplayName = named.DisplayName
		if meta.DisplayName == "" {
			meta.DisplayName = named.Name
		}
		meta.Metadata = d.UserData
	}

	res, err := g.Orch.Join(meeting, caller.UserID, meta)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"participants": domain.IDsOf(res.Others),
		"hostId":       res.HostID,
		"message":      fmt.Sprintf("joined meeting %s", meeting),
	}, nil
}

func (g *Gate) leave(caller domain.Caller, meeting domain.MeetingID, _ json.RawMessage) (gin.H, error) {
	if err := g.Orch.Leave(meeting, caller.UserID); err != nil {
		return nil, err
	}
	return gin.H{"message": fmt.Sprintf("left meeting %s", meeting)}, nil
}

func (g *Gate) signal(t domain.SignalType) actionFunc {
	return func(caller domain.Caller, meeting domain.MeetingID, data json.RawMessage) (gin.H, error) {
		var d targetData
		if err := decodeData(data, &d); err != nil {
			return nil, err
		}
		var payload json.RawMessage
		switch t {
		case domain.SignalOffer:
			payload = d.Offer
		case domain.SignalAnswer:
			payload = d.Answer
		case domain.SignalICECandidate:
			payload = d.Candidate
		}
		err := g.Orch.Relay(meeting, domain.SignalingMessage{
			Type:     t,
			SenderID: caller.UserID,
			TargetID: domain.UserID(d.TargetUserID),
			Payload:  payload,
		})
		if err != nil {
			return nil, err
		}
		return gin.H{"message": fmt.Sprintf("%s sent to %s", t, d.TargetUserID)}, nil
	}
}

func (g *Gate) command(t domain.CommandType) actionFunc {
	return func(caller domain.Caller, meeting domain.MeetingID, data json.RawMessage) (gin.H, error) {
		var d targetData
		if err := decodeData(data, &d); err != nil {
			return nil, err
		}
		err := g.Orch.IssueCommand(meeting, domain.ControlCommand{
			Type:     t,
			IssuerID: caller.UserID,
			TargetID: domain.UserID(d.TargetUserID),
			Payload:  data,
		})
		if err != nil {
			return nil, err
		}
		return gin.H{"message": fmt.Sprintf("%s sent to %s", t, d.TargetUserID)}, nil
	}
}

func (g *Gate) transferHost(caller domain.Caller, meeting domain.MeetingID, data json.RawMessage) (gin.H, error) {
	var d targetData
	if err := decodeData(data, &d); err != nil {
		return nil, err
	}
	if err := g.Orch.TransferHost(meeting, caller.UserID, domain.UserID(d.TargetUserID)); err != nil {
		return nil, err
	}
	return gin.H{"message": fmt.Sprintf("host is now %s", d.TargetUserID), "hostId": d.TargetUserID}, nil
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorTable = []errorMapping{
	{domain.ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	{domain.ErrInvalidAction, http.StatusBadRequest, "InvalidAction"},
	{domain.ErrInvalidParticipant, http.StatusBadRequest, "InvalidParticipant"},
	{domain.ErrInvalidPayload, http.StatusBadRequest, "InvalidPayload"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RateLimited"},
	// expected outcomes of races and bad clicks; reported in the body
	{domain.ErrParticipantNotFound, http.StatusOK, "ParticipantNotFound"},
	{domain.ErrForbidden, http.StatusOK, "Forbidden"},
}

func writeError(c *gin.Context, action string, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"success": false, "error": m.code, "message": err.Error()})
			return
		}
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("action", action).
		Str("request_id", c.GetString(requestIDKey)).Msg("internal error")
	c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "InternalError"})
}
