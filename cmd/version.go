package main

import (
	"os"

	xbwd "github.com/pwang200/xbridge-witness"
	"github.com/urfave/cli/v2"
)

func versionCmd(*cli.Context) error {
	xbwd.PrintVersion(os.Stdout)
	return nil
}
