package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

func tierCommand() *cli.Command {
	return &cli.Command{
		Name:  "tier",
		Usage: "inspect and move blob placement between hot/warm/cold",
		Subcommands: []*cli.Command{
			{
				Name:  "get",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					tier, err := e.fs.GetTier(context.Background(), c.String("path"))
					if err != nil {
						return err
					}
					if tier == "" {
						fmt.Println("(no blob)")
						return nil
					}
					fmt.Println(tier)
					return nil
				},
			},
			{
				Name:  "promote",
				Flags: []cli.Flag{pathFlag(), &cli.StringFlag{Name: "target", Required: true}},
				Action: func(c *cli.Context) error {
					return e.fs.Promote(context.Background(), c.String("path"), c.String("target"))
				},
			},
			{
				Name:  "demote",
				Flags: []cli.Flag{pathFlag(), &cli.StringFlag{Name: "target", Required: true}},
				Action: func(c *cli.Context) error {
					return e.fs.Demote(context.Background(), c.String("path"), c.String("target"))
				},
			},
		},
	}
}

func gcCommand() *cli.Command {
	return &cli.Command{
		Name:  "gc",
		Usage: "sweep blobs whose refcount has dropped to zero",
		Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 100}},
		Action: func(c *cli.Context) error {
			swept, err := e.meta.GCSweep(context.Background(), c.Int("limit"))
			if err != nil {
				return err
			}
			fmt.Printf("swept %d blob(s)\n", len(swept))
			for _, id := range swept {
				fmt.Println(" ", id)
			}
			return nil
		},
	}
}
