package pitsws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/publish"
)

const (
	roleManager = "manager"
	roleChild   = "child"
)

// normalizeRole maps the negotiated subprotocol to a connection role. The
// "session" name is accepted as an alias for child.
func normalizeRole(protocol string) string {
	switch strings.TrimSpace(protocol) {
	case roleManager:
		return roleManager
	case roleChild, "session":
		return roleChild
	default:
		return ""
	}
}

// Connect establishes a connection record. Manager connections stand alone;
// child connections link under an existing manager, or degrade to standalone
// when the referenced manager does not exist. Claims verified at connect time
// pre-authorize the connection, skipping the login handshake.
func (h *Handler) Connect(ctx context.Context, req *Request) *Response {
	role := normalizeRole(req.Header("Sec-WebSocket-Protocol"))
	if role == "" {
		// Reject before any state is created. The push is best-effort: the
		// handshake has not completed yet.
		return h.post(ctx, req, req.ConnectionID,
			Failure(http.StatusBadRequest, CodeInvalidInput, "Invalid subprotocol. Expected manager or child"))
	}

	managerID := req.Header("ManagerId")
	if managerID == "" {
		managerID = req.Query("managerId")
	}
	if role == roleChild && managerID == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("managerId"))
	}

	conn := connectiondao.Connection{
		ConnectionID: req.ConnectionID,
		Endpoint:     req.Endpoint,
		CreateTime:   time.Now().Unix(),
	}
	if claims := req.Authorizer(); claims != nil {
		_, conn.Authorized = claims["sub"]
		conn.Claims = claims
		if exp, ok := claims["exp"].(float64); ok {
			conn.ExpiresIn = int64(exp)
		}
	}

	if role == roleManager {
		conn.Manager = true
		if err := h.Connections.Create(ctx, req.AccountID, conn); err != nil {
			h.Logger.Error().Err(err).Msg("failed to store manager connection")
			return InternalError("Internal server error")
		}
		h.Logger.Info().
			Str("connection_id", req.ConnectionID).
			Msg("started a manager connection")
		return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
			"connectionId": req.ConnectionID,
		}))
	}

	manager, err := h.Connections.Get(ctx, req.AccountID, managerID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve manager connection")
		return InternalError("Internal server error")
	}
	if manager == nil {
		h.Logger.Warn().
			Str("manager_id", managerID).
			Msg("manager does not exist, starting a standalone connection")
		conn.Manager = true
		if err := h.Connections.Create(ctx, req.AccountID, conn); err != nil {
			h.Logger.Error().Err(err).Msg("failed to store connection")
			return InternalError("Internal server error")
		}
		return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
			"connectionId": req.ConnectionID,
		}))
	}

	conn.ManagerID = managerID
	link := connectiondao.ManagerLink{
		ConnectionID: req.ConnectionID,
		ManagerID:    managerID,
		Authorized:   conn.Authorized,
		Claims:       conn.Claims,
		ExpiresIn:    conn.ExpiresIn,
	}
	if err := h.Connections.CreateWithLink(ctx, req.AccountID, conn, link); err != nil {
		h.Logger.Error().Err(err).Msg("failed to store child connection")
		return InternalError("Internal server error")
	}
	h.Logger.Info().
		Str("connection_id", req.ConnectionID).
		Str("manager_id", managerID).
		Msg("started a child connection")

	// Announce the child to its manager.
	return h.post(ctx, req, managerID, OK(map[string]interface{}{
		"connectionId": req.ConnectionID,
	}))
}

// Disconnect tears a connection down: the manager link is removed, child
// connections are cascaded closed, and every open session is deleted with a
// synthesized stop event published so the device side is not orphaned. All of
// it is best-effort; the socket is already gone.
func (h *Handler) Disconnect(ctx context.Context, req *Request) *Response {
	conn, err := h.Connections.Get(ctx, req.AccountID, req.ConnectionID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to look up connection")
	}

	var managerID string
	if conn != nil && conn.ManagerID != "" {
		managerID = conn.ManagerID
		h.Logger.Info().
			Str("manager_id", managerID).
			Msg("removing session tied to manager")
		if err := h.Connections.DeleteLink(ctx, req.AccountID, managerID, req.ConnectionID); err != nil {
			h.Logger.Error().Err(err).Msg("failed to delete manager link")
		}
	}

	h.closeManagerConnections(ctx, req)

	sessions, err := h.Sessions.All(ctx, req.AccountID, req.ConnectionID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to enumerate sessions")
		return OK(nil)
	}
	if err := h.Sessions.DeleteAll(ctx, req.AccountID, req.ConnectionID, sessions); err != nil {
		h.Logger.Error().Err(err).Msg("failed to delete sessions")
	}
	for _, session := range sessions {
		event := session.Event
		event.Session = &publish.SessionFlags{Start: false, Stop: true}
		err := h.Devices.Publish(ctx, session.DeviceID, event, publish.Source{
			ConnectionID: req.ConnectionID,
			ManagerID:    managerID,
			InvokeID:     session.InvokeID,
		})
		if err != nil {
			h.Logger.Error().Err(err).
				Str("device_id", session.DeviceID).
				Str("invoke_id", session.InvokeID).
				Msg("failed to publish session stop")
		}
	}
	return OK(nil)
}
