package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"actorfs/branch"
)

func branchCommand() *cli.Command {
	return &cli.Command{
		Name:  "branch",
		Usage: "copy-on-write branch management",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}, &cli.StringFlag{Name: "from"}},
				Action: func(c *cli.Context) error {
					_, err := e.branches.Create(context.Background(), c.String("name"), c.String("from"), "")
					return err
				},
			},
			{
				Name:  "list",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "include-archived"}},
				Action: func(c *cli.Context) error {
					branches, err := e.branches.List(context.Background(), branch.ListOptions{IncludeArchived: c.Bool("include-archived")})
					if err != nil {
						return err
					}
					for _, b := range branches {
						flags := ""
						if b.IsDefault {
							flags += " default"
						}
						if b.IsArchived {
							flags += " archived"
						}
						fmt.Printf("%-20s head=%-12s commits=%d%s\n", b.Name, b.HeadCommit, b.CommitCount, flags)
					}
					return nil
				},
			},
			{
				Name:  "commit",
				Usage: "flush a branch overlay's dirty paths into durable branch metadata",
				Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}, &cli.StringFlag{Name: "head", Required: true}},
				Action: func(c *cli.Context) error {
					res, err := e.bmgr.Commit(context.Background(), c.String("name"), c.String("head"))
					if err != nil {
						return err
					}
					fmt.Printf("committed %d path(s)\n", res.PathsCommitted)
					return nil
				},
			},
			{
				Name:  "rm",
				Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
				Action: func(c *cli.Context) error {
					return e.branches.Delete(context.Background(), c.String("name"))
				},
			},
		},
	}
}
