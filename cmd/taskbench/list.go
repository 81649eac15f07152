package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/Swind/go-task-executor/workload"
)

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List available workloads",
		Action:  ListAction,
	}
}

func ListAction(c *cli.Context) error {
	for _, w := range workload.All() {
		fmt.Fprintf(c.App.Writer, "%-14s %s\n", w.Name, w.Description)
	}
	return nil
}
