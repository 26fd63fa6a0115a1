// Package pitsws implements the WebSocket signaling surface for the pits-data
// service: the per-event dispatcher, the connection lifecycle, the login
// handshake, and the device invocation coordinator.
package pitsws

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
)

// Well-known route keys assigned by API Gateway.
const (
	RouteConnect    = "$connect"
	RouteDisconnect = "$disconnect"
	RouteDefault    = "$default"
)

// HandlerFunc handles one event. A nil response means "no content".
type HandlerFunc func(ctx context.Context, req *Request) *Response

// FilterFunc runs before route resolution. A non-nil response aborts the
// remaining filters and the route dispatch, and becomes the event's response.
type FilterFunc func(ctx context.Context, req *Request) *Response

// Dispatcher routes inbound WebSocket events to their handlers. Each event is
// processed against a fresh Request value; a handler failure never escapes
// the dispatch boundary.
type Dispatcher struct {
	Logger  zerolog.Logger
	Metrics *pitscli.Metrics

	routes  map[string]HandlerFunc
	filters []FilterFunc
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Logger: logger,
		routes: map[string]HandlerFunc{},
	}
}

// Route registers the handler for a route key.
func (d *Dispatcher) Route(key string, handler HandlerFunc) {
	d.routes[key] = handler
}

// Use appends a filter. Filters run in registration order.
func (d *Dispatcher) Use(filter FilterFunc) {
	d.filters = append(d.filters, filter)
}

// Actions returns the registered client-facing action names, sorted.
func (d *Dispatcher) Actions() []string {
	var actions []string
	for key := range d.routes {
		if strings.HasPrefix(key, "$") {
			continue
		}
		actions = append(actions, key)
	}
	sort.Strings(actions)
	return actions
}

// HandleEvent processes one inbound event and shapes its proxy response.
func (d *Dispatcher) HandleEvent(ctx context.Context, event events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	req := NewRequest(event)
	logger := d.Logger.With().
		Str("connection_id", req.ConnectionID).
		Str("route", req.RouteKey).
		Logger()

	start := time.Now()
	res := d.dispatch(ctx, logger, req)
	if d.Metrics != nil {
		d.Metrics.Timing(ctx, pitscli.ResponseTimeMetric, start, map[pitscli.DimensionName]string{
			pitscli.RouteKeyDimension: req.RouteKey,
		})
	}

	if res == nil {
		res = &Response{StatusCode: 204}
	}
	if res.Action == "" {
		res.Action = req.RouteKey
	}
	if res.RequestID == "" {
		res.RequestID = req.ResponseRequestID()
	}

	body := res.Envelope()
	return events.APIGatewayProxyResponse{
		StatusCode: res.StatusCode,
		Headers: map[string]string{
			"Content-Type":   "application/json",
			"Content-Length": strconv.Itoa(len(body)),
		},
		Body: string(body),
	}, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, logger zerolog.Logger, req *Request) (res *Response) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			res = InternalError("Internal server error")
		}
	}()

	for _, filter := range d.filters {
		if aborted := filter(ctx, req); aborted != nil {
			return aborted
		}
	}

	handler, ok := d.routes[req.RouteKey]
	if !ok {
		handler, ok = d.routes[RouteDefault]
	}
	if !ok {
		logger.Warn().Msg("unknown route")
		return NotFound("Resource not found")
	}
	return handler(ctx, req)
}
