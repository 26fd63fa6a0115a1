package pitsws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/tokendao"
)

// Login authorizes an established connection by exchanging a single-use
// control-plane token and a verified identity token. Supplying a managerId
// links the connection under an existing manager in the same commit. The
// whole exchange lands atomically: the token is consumed exactly once, and an
// authorized connection never exists without its token marked activated.
func (h *Handler) Login(ctx context.Context, req *Request) *Response {
	var body struct {
		Payload struct {
			TokenID   string `json:"tokenId"`
			JwtID     string `json:"jwtId"`
			ManagerID string `json:"managerId"`
		} `json:"payload"`
	}
	if req.Body != "" {
		if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
			h.Logger.Warn().Err(err).Msg("failed to parse login payload")
		}
	}
	input := body.Payload

	managerID := input.ManagerID
	if managerID != "" {
		manager, err := h.Connections.Get(ctx, req.AccountID, managerID)
		if err != nil {
			h.Logger.Error().Err(err).Msg("failed to resolve manager connection")
			return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
		}
		if manager == nil {
			h.Logger.Warn().
				Str("manager_id", managerID).
				Msg("the specified manager does not exist")
			managerID = ""
		}
	}

	conn, err := h.Connections.Get(ctx, req.AccountID, req.ConnectionID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to look up connection")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}
	if conn == nil {
		return h.post(ctx, req, req.ConnectionID, AccessDenied("Connection is not valid"))
	}
	if conn.Authorized {
		return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
			"authorized": true,
		}))
	}

	if input.TokenID == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("tokenId"))
	}
	if input.JwtID == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("jwtId"))
	}

	claims, err := h.Verifier.Verify(input.JwtID)
	if err != nil {
		h.Logger.Warn().Err(err).Msg("failed to authorize jwt token")
		return h.post(ctx, req, req.ConnectionID, AccessDenied("JWT token is not valid"))
	}

	token, err := h.Tokens.Get(ctx, req.AccountID, input.TokenID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to look up token")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}
	if token == nil || token.Authorization.Activated {
		return h.post(ctx, req, req.ConnectionID, AccessDenied("Token is not valid"))
	}

	updated := *conn
	updated.Authorized = true
	updated.Claims = claims
	updated.ManagerID = managerID
	updated.Manager = managerID == ""
	if exp, ok := claims["exp"].(float64); ok {
		updated.ExpiresIn = int64(exp)
	}

	activation := tokendao.Activation{
		Token: tokendao.Token{
			ID:         token.ID,
			CreateTime: token.CreateTime,
			ExpiresIn:  token.ExpiresIn,
			Authorization: tokendao.Authorization{
				ConnectionID: req.ConnectionID,
				Activated:    true,
			},
		},
		Connection: updated,
	}
	if managerID != "" {
		activation.Link = &connectiondao.ManagerLink{
			ConnectionID: req.ConnectionID,
			ManagerID:    managerID,
			Authorized:   true,
			Claims:       claims,
			ExpiresIn:    updated.ExpiresIn,
		}
	}

	if err := h.Tokens.Activate(ctx, req.AccountID, activation); err != nil {
		if errors.Is(err, tokendao.ErrTokenConsumed) {
			return h.post(ctx, req, req.ConnectionID, AccessDenied("Token is not valid"))
		}
		h.Logger.Error().Err(err).Msg("failed to activate token")
		return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
	}

	return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
		"authorized":   true,
		"connectionId": req.ConnectionID,
	}))
}
