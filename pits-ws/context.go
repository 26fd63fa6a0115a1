package pitsws

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Request is the per-event scope: one value is allocated for each inbound
// event and threaded explicitly through filters and handlers, so concurrent
// events never observe each other's state.
type Request struct {
	Event        events.APIGatewayWebsocketProxyRequest
	RouteKey     string
	ConnectionID string
	AccountID    string
	Endpoint     string
	RequestID    string
	Body         string
}

// NewRequest builds the request scope for one inbound event.
func NewRequest(event events.APIGatewayWebsocketProxyRequest) *Request {
	rc := event.RequestContext
	account := rc.AccountID
	if account == "" {
		account = WSOpts.AccountID
	}
	endpoint := fmt.Sprintf("https://%s/%s", rc.DomainName, rc.Stage)
	if WSOpts.ServiceDomain != "" {
		endpoint = "https://" + WSOpts.ServiceDomain
	}
	return &Request{
		Event:        event,
		RouteKey:     rc.RouteKey,
		ConnectionID: rc.ConnectionID,
		AccountID:    account,
		Endpoint:     endpoint,
		RequestID:    rc.RequestID,
		Body:         event.Body,
	}
}

// Header returns a header value, case-insensitively.
func (r *Request) Header(name string) string {
	if v, ok := r.Event.Headers[name]; ok {
		return v
	}
	for k, v := range r.Event.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Query returns a query string parameter.
func (r *Request) Query(name string) string {
	return r.Event.QueryStringParameters[name]
}

// Authorizer returns the connect-time authorizer claims, if any.
func (r *Request) Authorizer() map[string]interface{} {
	claims, _ := r.Event.RequestContext.Authorizer.(map[string]interface{})
	return claims
}

// ParseBody decodes the event body into v. An empty body leaves v untouched.
func (r *Request) ParseBody(v interface{}) error {
	if r.Body == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(r.Body), v); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}
	return nil
}

// ResponseRequestID returns the request id echoed on response envelopes: the
// one supplied in the payload if present, else the platform-assigned id.
func (r *Request) ResponseRequestID() string {
	var body struct {
		RequestID string `json:"requestId"`
	}
	if r.Body != "" {
		if err := json.Unmarshal([]byte(r.Body), &body); err == nil && body.RequestID != "" {
			return body.RequestID
		}
	}
	return r.RequestID
}
