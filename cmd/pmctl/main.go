// Command pmctl is an operator CLI for the portfolio gateway. It talks to
// the upstream backend directly and shares the gateway's validation,
// aggregation and client-state store.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// register adds the pmctl subcommands.
func register(c *subcommands.Commander) {
	c.Register(&summaryCmd{}, "portfolio")
	c.Register(&quoteCmd{}, "portfolio")
	c.Register(&searchCmd{}, "portfolio")
	c.Register(&performanceCmd{}, "portfolio")
	c.Register(&lotsCmd{}, "portfolio")

	c.Register(&orderCmd{}, "trading")
	c.Register(&ordersCmd{}, "trading")
	c.Register(&cancelCmd{}, "trading")

	c.Register(&watchlistCmd{}, "settings")
	c.Register(&darkModeCmd{}, "settings")

	c.Register(&cashCmd{}, "cash")
}
