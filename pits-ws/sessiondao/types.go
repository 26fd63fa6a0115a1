package sessiondao

import "github.com/pinthesky/pits-data/pits-ws/publish"

// Session is one active device invocation owned by a connection. It exists
// from the moment an invoke with session.start arrives until the matching
// session.stop, or until the owning connection disconnects.
type Session struct {
	PK           string        `dynamodbav:"pk" ddb:"hash" json:"-"`
	Scope        string        `dynamodbav:"scope" ddb:"gsi_hash:ScopeIndex" json:"-"`
	InvokeID     string        `dynamodbav:"invoke_id" json:"invokeId"`
	ConnectionID string        `dynamodbav:"connection_id" json:"connectionId"`
	DeviceID     string        `dynamodbav:"device_id" json:"deviceId"`
	Event        publish.Event `dynamodbav:"event" json:"event"`
	ExpiresIn    int64         `dynamodbav:"expires_in,omitempty" json:"expiresIn,omitempty"`
}
