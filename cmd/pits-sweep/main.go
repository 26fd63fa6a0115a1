package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/urfave/cli/v2"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
	pitsddb "github.com/pinthesky/pits-data/pits-ddb"
	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/notify"
)

var service = pitscli.NewService("pits-sweep")

// sweeper closes the sockets of connection records removed by table TTL. The
// directory record expiring is the signal; the channel itself does not time
// out on its own.
type sweeper struct {
	poster *notify.Notifier
}

func main() {
	flags := append([]cli.Flag{}, pitscli.CommonFlags...)
	flags = append(flags, pitsddb.DDBFlags...)

	app := pitscli.App(service, run, flags...)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	s := &sweeper{
		poster: &notify.Notifier{Logger: pitscli.Logger(service)},
	}
	handler := pitsddb.NewHandler(service, nil, nil, s.onDelete)
	return handler.Start()
}

func (s *sweeper) onDelete(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := pitsddb.ParseItem(oldValue, &conn); err != nil {
		return err
	}
	if !strings.Contains(conn.PK, "#Connection#") {
		return nil
	}
	if conn.Endpoint == "" || conn.ConnectionID == "" {
		return nil
	}

	logger := s.poster.Logger.With().Str("connection_id", conn.ConnectionID).Logger()
	if err := s.poster.ForceClose(ctx, conn.Endpoint, conn.ConnectionID); err != nil {
		if notify.IsGone(err) {
			return nil
		}
		logger.Error().Err(err).Msg("failed to close expired connection")
		return err
	}
	logger.Info().Msg("closed expired connection")
	return nil
}
