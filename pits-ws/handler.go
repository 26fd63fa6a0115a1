package pitsws

import (
	"context"
	"runtime/debug"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pinthesky/pits-data/pits-ws/datastore"
	"github.com/pinthesky/pits-data/pits-ws/notify"
)

// Handler owns the signaling routes. Collaborators are injected once at
// process start and are read-only afterwards.
type Handler struct {
	Connections ConnectionStore
	Sessions    SessionStore
	Tokens      TokenStore
	Verifier    Verifier
	Devices     DevicePublisher
	Poster      Poster
	Logger      zerolog.Logger
}

// Register installs the signaling routes and filters on a dispatcher.
func (h *Handler) Register(d *Dispatcher) {
	d.Use(h.logFilter)
	d.Route(RouteConnect, h.Connect)
	d.Route(RouteDisconnect, h.Disconnect)
	d.Route("login", h.pushed(h.Login))
	d.Route("invoke", h.pushed(h.Invoke))
	d.Route("listSessions", h.pushed(h.ListSessions))
	d.Route("status", h.pushed(h.Status))
	d.Route("sendMessage", h.pushed(h.SendMessage))
	d.Route(RouteDefault, h.pushed(h.Default(d)))
}

func (h *Handler) logFilter(ctx context.Context, req *Request) *Response {
	h.Logger.Debug().
		Str("connection_id", req.ConnectionID).
		Str("route", req.RouteKey).
		Str("request_id", req.RequestID).
		Msg("event received")
	return nil
}

// pushed guarantees that a connection-oriented route always answers on the
// initiating connection's channel, even when the handler fails.
func (h *Handler) pushed(fn HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (res *Response) {
		defer func() {
			if r := recover(); r != nil {
				h.Logger.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Str("route", req.RouteKey).
					Msg("handler panicked")
				res = h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
			}
		}()
		return fn(ctx, req)
	}
}

// post delivers the response envelope to a connection's channel and returns
// the response for the synchronous path. Delivery failures are logged, not
// propagated.
func (h *Handler) post(ctx context.Context, req *Request, connectionID string, res *Response) *Response {
	if res.Action == "" {
		res.Action = req.RouteKey
	}
	if res.RequestID == "" {
		res.RequestID = req.ResponseRequestID()
	}
	if err := h.Poster.Send(ctx, req.Endpoint, connectionID, res.Envelope()); err != nil {
		h.Logger.Warn().Err(err).
			Str("connection_id", connectionID).
			Msg("failed to post response")
	}
	return res
}

// closeManagerConnections force-closes every child linked under the
// connection, removes their link records, and deletes the connection's own
// directory record. Per-channel failures are logged and do not abort the
// loop.
func (h *Handler) closeManagerConnections(ctx context.Context, req *Request) {
	links, err := h.Connections.Links(ctx, req.AccountID, req.ConnectionID)
	if err != nil {
		h.Logger.Error().Err(err).
			Str("connection_id", req.ConnectionID).
			Msg("failed to enumerate child connections")
	}

	if len(links) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(50)
		for _, link := range links {
			link := link
			g.Go(func() error {
				if err := h.Poster.ForceClose(gctx, req.Endpoint, link.ConnectionID); err != nil && !notify.IsGone(err) {
					h.Logger.Error().Err(err).
						Str("connection_id", link.ConnectionID).
						Msg("failed to close child connection")
				}
				if err := h.Connections.DeleteLink(gctx, req.AccountID, req.ConnectionID, link.ConnectionID); err != nil {
					h.Logger.Error().Err(err).
						Str("connection_id", link.ConnectionID).
						Msg("failed to delete child link")
				}
				return nil
			})
		}
		g.Wait()
	}

	if err := h.Connections.Delete(ctx, req.AccountID, req.ConnectionID); err != nil {
		h.Logger.Error().Err(err).
			Str("connection_id", req.ConnectionID).
			Msg("failed to delete connection")
	}
}

// Default answers unrecognized actions with the list of available ones.
func (h *Handler) Default(d *Dispatcher) HandlerFunc {
	return func(ctx context.Context, req *Request) *Response {
		res := NotFound("Resource not found")
		res.Body = map[string]interface{}{
			"availableActions": d.Actions(),
		}
		return h.post(ctx, req, req.ConnectionID, res)
	}
}

// SendMessage broadcasts a payload to every live connection in the account
// partition. Administrative surface.
func (h *Handler) SendMessage(ctx context.Context, req *Request) *Response {
	var input struct {
		Message string `json:"message"`
	}
	if err := req.ParseBody(&input); err != nil || input.Message == "" {
		return h.post(ctx, req, req.ConnectionID, InvalidInput("message"))
	}

	delivered := 0
	var nextToken string
	for {
		conns, next, err := h.Connections.List(ctx, req.AccountID, datastore.Page{NextToken: nextToken})
		if err != nil {
			h.Logger.Error().Err(err).Msg("failed to list connections")
			return h.post(ctx, req, req.ConnectionID, InternalError("Internal server error"))
		}
		for _, conn := range conns {
			if err := h.Poster.Send(ctx, req.Endpoint, conn.ConnectionID, []byte(input.Message)); err != nil {
				h.Logger.Warn().Err(err).
					Str("connection_id", conn.ConnectionID).
					Msg("failed to deliver broadcast")
				continue
			}
			delivered++
		}
		if next == "" {
			break
		}
		nextToken = next
	}

	return h.post(ctx, req, req.ConnectionID, OK(map[string]interface{}{
		"delivered": delivered,
	}))
}
