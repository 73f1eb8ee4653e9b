package main

import (
	"log"
	"os"

	"github.com/pwang200/xbridge-witness/config"
	"github.com/urfave/cli/v2"
)

const appName = "xbridge-witnessd"

var (
	configFileFlag = cli.StringFlag{
		Name:     config.FlagCfg,
		Aliases:  []string{"c"},
		Usage:    "Configuration `FILE`",
		Required: true,
	}
)

func main() {
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "Cross-chain bridge witness daemon"

	app.Commands = []*cli.Command{
		{
			Name:   "version",
			Usage:  "Application version and build",
			Action: versionCmd,
		},
		{
			Name:   "run",
			Usage:  "Run the witness daemon",
			Action: runCmd,
			Flags:  []cli.Flag{&configFileFlag},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}
