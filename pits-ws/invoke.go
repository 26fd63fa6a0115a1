package pitsws

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/datastore"
	"github.com/pinthesky/pits-data/pits-ws/publish"
	"github.com/pinthesky/pits-data/pits-ws/sessiondao"
)

type invokeInput struct {
	DeviceID     string         `json:"deviceId"`
	Event        *publish.Event `json:"event"`
	ConnectionID string         `json:"connectionId"`
	InvokeID     string         `json:"invokeId"`
}

// related reports whether the requester may act on the target connection.
// A connection can reach itself, its manager can reach it, and it can reach
// its own manager.
func related(requesterID string, requester *connectiondao.Connection, target *connectiondao.Connection) bool {
	if target == nil {
		return false
	}
	if target.ConnectionID == requesterID || target.ManagerID == requesterID {
		return true
	}
	return requester != nil && requester.ManagerID == target.ConnectionID
}

// resolveTarget fetches the target connection along with the requester's own
// record. When the target is the requester, a single lookup serves both.
func (h *Handler) resolveTarget(ctx context.Context, req *Request, targetID string) (requester, target *connectiondao.Connection, err error) {
	if targetID == req.ConnectionID {
		requester, err = h.Connections.Get(ctx, req.AccountID, req.ConnectionID)
		return requester, requester, err
	}
	conns, err := h.Connections.BatchGet(ctx, req.AccountID, []string{req.ConnectionID, targetID})
	if err != nil {
		return nil, nil, err
	}
	for i := range conns {
		conn := conns[i]
		if conn.ConnectionID == req.ConnectionID {
			requester = &conn
		}
		if conn.ConnectionID == targetID {
			target = &conn
		}
	}
	return requester, target, nil
}

// Invoke relays a named event to the device paired with the target
// connection. A start session registers the invocation before publishing so a
// later disconnect can synthesize its stop; a stop tears the registration
// down after publishing.
func (h *Handler) Invoke(ctx context.Context, req *Request) *Response {
	var input invokeInput
	if err := req.ParseBody(&input); err != nil {
		h.Logger.Warn().Err(err).Msg("failed to parse invoke payload")
	}

	if input.DeviceID == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("deviceId"))
	}
	if input.Event == nil {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("event"))
	}
	if input.Event.Name == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("event.name"))
	}
	if flags := input.Event.Session; flags != nil && flags.Start && flags.Stop {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("session"))
	}

	targetID := input.ConnectionID
	if targetID == "" {
		targetID = req.ConnectionID
	}

	requester, target, err := h.resolveTarget(ctx, req, targetID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve connections")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}
	if requester == nil {
		return h.post(ctx, req, req.ConnectionID,
			AccessDenied(fmt.Sprintf("Connection %v is not valid", req.ConnectionID)))
	}
	if !requester.Authorized {
		return h.post(ctx, req, req.ConnectionID,
			AccessDenied(fmt.Sprintf("Connection %v is not authorized", req.ConnectionID)))
	}
	if target == nil || !related(req.ConnectionID, requester, target) {
		return h.post(ctx, req, req.ConnectionID,
			AccessDenied(fmt.Sprintf("Connection %v is not valid", targetID)))
	}

	invokeID := input.InvokeID
	if invokeID == "" {
		invokeID = uuid.NewString()
	}

	flags := input.Event.Session
	if flags != nil && flags.Start {
		session := sessiondao.Session{
			InvokeID:     invokeID,
			ConnectionID: targetID,
			DeviceID:     input.DeviceID,
			Event:        *input.Event,
			ExpiresIn:    target.ExpiresIn,
		}
		if err := h.Sessions.Create(ctx, req.AccountID, targetID, session); err != nil {
			h.Logger.Error().Err(err).Msg("failed to store session")
			return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
		}
	}

	err = h.Devices.Publish(ctx, input.DeviceID, *input.Event, publish.Source{
		ConnectionID: targetID,
		ManagerID:    target.ManagerID,
		InvokeID:     invokeID,
	})
	if err != nil {
		h.Logger.Error().Err(err).
			Str("device_id", input.DeviceID).
			Msg("failed to publish event")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}

	if flags != nil && flags.Stop {
		if err := h.Sessions.Delete(ctx, req.AccountID, targetID, invokeID); err != nil {
			h.Logger.Error().Err(err).
				Str("invoke_id", invokeID).
				Msg("failed to delete session")
		}
	}

	return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
		"invokeId": invokeID,
	}))
}

// ListSessions pages through the invocation sessions registered on a
// connection the requester is allowed to inspect.
func (h *Handler) ListSessions(ctx context.Context, req *Request) *Response {
	var input struct {
		ConnectionID string `json:"connectionId"`
		Limit        int64  `json:"limit"`
		NextToken    string `json:"nextToken"`
	}
	if err := req.ParseBody(&input); err != nil {
		h.Logger.Warn().Err(err).Msg("failed to parse listSessions payload")
	}

	targetID := input.ConnectionID
	if targetID == "" {
		targetID = req.ConnectionID
	}

	requester, target, err := h.resolveTarget(ctx, req, targetID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve connections")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}
	if target == nil || !related(req.ConnectionID, requester, target) {
		return h.post(ctx, req, req.ConnectionID,
			NotFound(fmt.Sprintf("The connection %v was not found", targetID)))
	}
	if requester == nil || !requester.Authorized {
		return h.post(ctx, req, req.ConnectionID,
			AccessDenied(fmt.Sprintf("Connection %v is not authorized", req.ConnectionID)))
	}

	sessions, nextToken, err := h.Sessions.List(ctx, req.AccountID, targetID, datastore.Page{
		Limit:     input.Limit,
		NextToken: input.NextToken,
	})
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to list sessions")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}

	items := make([]map[string]interface{}, 0, len(sessions))
	for _, session := range sessions {
		items = append(items, map[string]interface{}{
			"invokeId":     session.InvokeID,
			"connectionId": session.ConnectionID,
			"deviceId":     session.DeviceID,
			"event":        session.Event,
		})
	}

	body := map[string]interface{}{
		"items":        items,
		"connectionId": targetID,
	}
	if nextToken != "" {
		body["nextToken"] = nextToken
	}
	return h.post(ctx, req, req.ConnectionID, OK(body))
}

// Status reports the directory record of a connection the requester is
// related to.
func (h *Handler) Status(ctx context.Context, req *Request) *Response {
	var input struct {
		ConnectionID string `json:"connectionId"`
	}
	if err := req.ParseBody(&input); err != nil {
		h.Logger.Warn().Err(err).Msg("failed to parse status payload")
	}

	targetID := input.ConnectionID
	if targetID == "" {
		targetID = req.ConnectionID
	}

	requester, target, err := h.resolveTarget(ctx, req, targetID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to resolve connections")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}
	if target == nil || !related(req.ConnectionID, requester, target) {
		return h.post(ctx, req, req.ConnectionID,
			NotFound(fmt.Sprintf("The connection %v was not found", targetID)))
	}
	if !target.Authorized {
		return h.post(ctx, req, req.ConnectionID,
			AccessDenied(fmt.Sprintf("Connection %v is not authorized", targetID)))
	}

	return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
		"connectionId": target.ConnectionID,
		"managerId":    target.ManagerID,
		"manager":      target.Manager,
		"authorized":   target.Authorized,
		"createTime":   target.CreateTime,
		"expiresIn":    target.ExpiresIn,
	}))
}
