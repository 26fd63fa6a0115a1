package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
	pitsddb "github.com/pinthesky/pits-data/pits-ddb"
	pitsrest "github.com/pinthesky/pits-data/pits-rest"
	pitsws "github.com/pinthesky/pits-data/pits-ws"
	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/datastore"
	"github.com/pinthesky/pits-data/pits-ws/notify"
)

var service = pitscli.NewService("pits-admin")

type server struct {
	connections *connectiondao.DAO
	poster      *notify.Notifier
	account     string
}

func main() {
	flags := append([]cli.Flag{}, pitscli.CommonFlags...)
	flags = append(flags, pitscli.PortFlag(3000))
	flags = append(flags, pitsws.AccountIDFlag, pitsws.ServiceDomainFlag)
	flags = append(flags, pitsddb.DAXClusterFlag, pitsddb.DAXRegionFlag)

	app := pitscli.App(service, run, flags...)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	sess := session.Must(session.NewSession())
	api, err := pitsddb.DynamoDBAPI(sess)
	if err != nil {
		return fmt.Errorf("failed to initialize dynamodb: %w", err)
	}

	s := &server{
		connections: connectiondao.Build(api, pitscli.CommonOpts.Env),
		poster:      &notify.Notifier{Logger: pitscli.Logger(service)},
		account:     pitsws.WSOpts.AccountID,
	}

	routes := pitsrest.Middlewares(service, chi.NewRouter())
	routes.Get("/health", s.health)
	routes.Get("/admin/connections", s.listConnections)
	routes.Get("/admin/connections/{connectionId}", s.getConnection)
	routes.Post("/admin/message", s.postMessage)

	return pitsrest.Webserver(service, routes)
}

func (s *server) health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": service.Name,
		"version": service.Version,
	})
}

func (s *server) listConnections(w http.ResponseWriter, req *http.Request) {
	page := datastore.Page{
		NextToken: req.URL.Query().Get("nextToken"),
	}
	if limit := req.URL.Query().Get("limit"); limit != "" {
		parsed, err := strconv.ParseInt(limit, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"message": "Input payload limit is invalid",
			})
			return
		}
		page.Limit = parsed
	}

	conns, nextToken, err := s.connections.List(req.Context(), s.account, page)
	if err != nil {
		writeError(w, req, err)
		return
	}
	body := map[string]interface{}{"items": conns}
	if nextToken != "" {
		body["nextToken"] = nextToken
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *server) getConnection(w http.ResponseWriter, req *http.Request) {
	connectionID := chi.URLParam(req, "connectionId")
	conn, err := s.connections.Get(req.Context(), s.account, connectionID)
	if err != nil {
		writeError(w, req, err)
		return
	}
	if conn == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"message": fmt.Sprintf("The connection %v was not found", connectionID),
		})
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

// postMessage pushes a raw payload to one connection, or broadcasts it across
// the account partition when no connectionId is given.
func (s *server) postMessage(w http.ResponseWriter, req *http.Request) {
	var input struct {
		ConnectionID string `json:"connectionId"`
		Message      string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&input); err != nil || input.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": "Input payload message is invalid",
		})
		return
	}

	delivered := 0
	var nextToken string
	for {
		conns, next, err := s.connections.List(req.Context(), s.account, datastore.Page{NextToken: nextToken})
		if err != nil {
			writeError(w, req, err)
			return
		}
		for _, conn := range conns {
			if input.ConnectionID != "" && conn.ConnectionID != input.ConnectionID {
				continue
			}
			if err := s.poster.Send(req.Context(), conn.Endpoint, conn.ConnectionID, []byte(input.Message)); err != nil {
				s.poster.Logger.Warn().Err(err).
					Str("connection_id", conn.ConnectionID).
					Msg("failed to deliver message")
				continue
			}
			delivered++
		}
		if next == "" {
			break
		}
		nextToken = next
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivered": delivered,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, req *http.Request, err error) {
	logger := pitscli.Logger(service)
	logger.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
		"message": "Internal server error",
	})
}
