package pitsws

import (
	"github.com/urfave/cli/v2"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
)

var WSOpts struct {
	AccountID     string
	ServiceDomain string
	DataEndpoint  string
	TopicPrefix   string
	UserPoolID    string
	UserClientID  string
	Region        string
	SecretName    string
}

var AccountIDFlag = pitscli.StringFlag("account-id", "Fallback account partition when the event carries none", &WSOpts.AccountID)
var ServiceDomainFlag = pitscli.StringFlag("service-domain", "Override for the connection management endpoint", &WSOpts.ServiceDomain)
var DataEndpointFlag = pitscli.StringFlag("data-endpoint", "The IoT data plane endpoint to publish device events to", &WSOpts.DataEndpoint)
var TopicPrefixFlag = pitscli.StringFlag("topic-prefix", "Prefix for device input topics", &WSOpts.TopicPrefix, "pinthesky")
var UserPoolIDFlag = pitscli.StringFlag("user-pool-id", "The user pool that issues identity tokens", &WSOpts.UserPoolID)
var UserClientIDFlag = pitscli.StringFlag("user-client-id", "The expected audience of identity tokens", &WSOpts.UserClientID)
var RegionFlag = pitscli.StringFlag("aws-region", "The region hosting the user pool", &WSOpts.Region, "us-east-1")
var SecretNameFlag = pitscli.StringFlag("user-secret-name", "Secrets Manager secret holding the user pool client configuration", &WSOpts.SecretName)

var WSFlags = []cli.Flag{
	AccountIDFlag,
	ServiceDomainFlag,
	DataEndpointFlag,
	TopicPrefixFlag,
	UserPoolIDFlag,
	UserClientIDFlag,
	RegionFlag,
	SecretNameFlag,
}
