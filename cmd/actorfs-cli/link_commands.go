package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

func linkCommands() *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "symlinks and hard links",
		Subcommands: []*cli.Command{
			{
				Name:  "symlink",
				Flags: []cli.Flag{&cli.StringFlag{Name: "target", Required: true}, pathFlag()},
				Action: func(c *cli.Context) error {
					return e.fs.Symlink(context.Background(), c.String("target"), c.String("path"))
				},
			},
			{
				Name:  "hardlink",
				Flags: []cli.Flag{&cli.StringFlag{Name: "existing", Required: true}, &cli.StringFlag{Name: "new", Required: true}},
				Action: func(c *cli.Context) error {
					return e.fs.Link(context.Background(), c.String("existing"), c.String("new"))
				},
			},
			{
				Name:  "readlink",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					target, err := e.fs.Readlink(context.Background(), c.String("path"))
					if err != nil {
						return err
					}
					fmt.Println(target)
					return nil
				},
			},
			{
				Name:  "realpath",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					resolved, err := e.fs.Realpath(context.Background(), c.String("path"))
					if err != nil {
						return err
					}
					fmt.Println(resolved)
					return nil
				},
			},
		},
	}
}
