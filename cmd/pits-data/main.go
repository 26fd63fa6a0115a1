package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/urfave/cli/v2"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
	pitsddb "github.com/pinthesky/pits-data/pits-ddb"
	pitssecret "github.com/pinthesky/pits-data/pits-secret"
	pitsws "github.com/pinthesky/pits-data/pits-ws"
	"github.com/pinthesky/pits-data/pits-ws/auth"
	"github.com/pinthesky/pits-data/pits-ws/connectiondao"
	"github.com/pinthesky/pits-data/pits-ws/notify"
	"github.com/pinthesky/pits-data/pits-ws/publish"
	"github.com/pinthesky/pits-data/pits-ws/sessiondao"
	"github.com/pinthesky/pits-data/pits-ws/tokendao"
)

var service = pitscli.NewService("pits-data")

// userPoolConfig allows the Cognito client configuration to live in Secrets
// Manager rather than plain environment.
type userPoolConfig struct {
	UserPoolID   string `json:"userPoolId"`
	UserClientID string `json:"userClientId"`
}

func main() {
	flags := append([]cli.Flag{}, pitscli.CommonFlags...)
	flags = append(flags, pitsws.WSFlags...)
	flags = append(flags, pitsddb.DAXClusterFlag, pitsddb.DAXRegionFlag)

	app := pitscli.App(service, run, flags...)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := pitscli.Logger(service)
	if pitscli.CommonOpts.Console {
		return fmt.Errorf("console mode is not supported, run behind an API Gateway WebSocket stage")
	}

	sess := session.Must(session.NewSession())
	api, err := pitsddb.DynamoDBAPI(sess)
	if err != nil {
		return fmt.Errorf("failed to initialize dynamodb: %w", err)
	}

	poolConfig := userPoolConfig{
		UserPoolID:   pitsws.WSOpts.UserPoolID,
		UserClientID: pitsws.WSOpts.UserClientID,
	}
	if name := pitsws.WSOpts.SecretName; name != "" {
		if err := pitssecret.LoadSecret(sess, name, &poolConfig); err != nil {
			return err
		}
	}

	jwks, err := auth.FetchKeys(context.Background(), pitsws.WSOpts.Region, poolConfig.UserPoolID)
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(poolConfig.UserClientID, jwks)
	if err != nil {
		return err
	}

	handler := &pitsws.Handler{
		Connections: connectiondao.Build(api, pitscli.CommonOpts.Env),
		Sessions:    sessiondao.Build(api, pitscli.CommonOpts.Env),
		Tokens:      tokendao.Build(api, pitscli.CommonOpts.Env),
		Verifier:    verifier,
		Devices:     publish.Build(pitsws.WSOpts.DataEndpoint, pitsws.WSOpts.TopicPrefix),
		Poster:      &notify.Notifier{Logger: logger},
		Logger:      logger,
	}

	dispatcher := pitsws.NewDispatcher(logger)
	metrics := pitscli.NewMetrics(service, cloudwatch.New(sess))
	dispatcher.Metrics = &metrics
	handler.Register(dispatcher)

	logger.Info().Str("env", pitscli.CommonOpts.Env).Msg("starting signaling handler")
	lambda.Start(dispatcher.HandleEvent)
	return nil
}
