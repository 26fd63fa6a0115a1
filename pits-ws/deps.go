package pitsws

import (
	"context"

	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/datastore"
	"github.com/pinthesky/pits-data/pits-ws/publish"
	"github.com/pinthesky/pits-data/pits-ws/sessiondao"
	"github.com/pinthesky/pits-data/pits-ws/tokendao"
)

// ConnectionStore is the connection directory consumed by the handlers.
// Implemented by connectiondao.DAO.
type ConnectionStore interface {
	Create(ctx context.Context, account string, conn connectiondao.Connection) error
	CreateWithLink(ctx context.Context, account string, conn connectiondao.Connection, link connectiondao.ManagerLink) error
	Get(ctx context.Context, account, connectionID string) (*connectiondao.Connection, error)
	BatchGet(ctx context.Context, account string, connectionIDs []string) ([]connectiondao.Connection, error)
	Delete(ctx context.Context, account, connectionID string) error
	List(ctx context.Context, account string, page datastore.Page) ([]connectiondao.Connection, string, error)
	DeleteLink(ctx context.Context, account, managerID, connectionID string) error
	Links(ctx context.Context, account, managerID string) ([]connectiondao.ManagerLink, error)
}

// SessionStore is the session registry consumed by the handlers. Implemented
// by sessiondao.DAO.
type SessionStore interface {
	Create(ctx context.Context, account, connectionID string, session sessiondao.Session) error
	Delete(ctx context.Context, account, connectionID, invokeID string) error
	List(ctx context.Context, account, connectionID string, page datastore.Page) ([]sessiondao.Session, string, error)
	All(ctx context.Context, account, connectionID string) ([]sessiondao.Session, error)
	DeleteAll(ctx context.Context, account, connectionID string, sessions []sessiondao.Session) error
}

// TokenStore is the exchange token store consumed by the login handshake.
// Implemented by tokendao.DAO.
type TokenStore interface {
	Get(ctx context.Context, account, tokenID string) (*tokendao.Token, error)
	Activate(ctx context.Context, account string, activation tokendao.Activation) error
}

// Verifier validates an identity token and returns its claims. Implemented by
// auth.Verifier.
type Verifier interface {
	Verify(token string) (map[string]interface{}, error)
}

// DevicePublisher delivers invocation events to devices. Implemented by
// publish.Publisher.
type DevicePublisher interface {
	Publish(ctx context.Context, deviceID string, event publish.Event, source publish.Source) error
}

// Poster delivers payloads to connections and force-closes stale ones.
// Implemented by notify.Notifier.
type Poster interface {
	Send(ctx context.Context, endpoint, connectionID string, data []byte) error
	ForceClose(ctx context.Context, endpoint, connectionID string) error
}
