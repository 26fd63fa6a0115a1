package pitsddb

import (
	"github.com/urfave/cli/v2"

	pitscli "github.com/pinthesky/pits-data/pits-cli"
)

var DDBOpts struct {
	DAXCluster string
	Region     string
	TableName  string
}

var DAXClusterFlag = pitscli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var DAXRegionFlag = pitscli.StringFlag("dax-region", "The region hosting the DAX cluster", &DDBOpts.Region, "us-east-1")
var TableNameFlag = pitscli.StringFlag("table-name", "The table name to read streams from", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	DAXRegionFlag,
	TableNameFlag,
}
