package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"actorfs/metadata"
	"actorfs/vfs"
)

func dirCommands() *cli.Command {
	return &cli.Command{
		Name:  "dir",
		Usage: "directory operations (mkdir, rmdir, ls)",
		Subcommands: []*cli.Command{
			{
				Name:  "mkdir",
				Flags: []cli.Flag{pathFlag(), &cli.BoolFlag{Name: "recursive", Aliases: []string{"p"}}, &cli.UintFlag{Name: "mode"}},
				Action: func(c *cli.Context) error {
					return e.fs.Mkdir(context.Background(), c.String("path"), vfs.MkdirOptions{
						Recursive: c.Bool("recursive"), Mode: uint32(c.Uint("mode")),
					})
				},
			},
			{
				Name:  "rmdir",
				Flags: []cli.Flag{pathFlag(), &cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}}},
				Action: func(c *cli.Context) error {
					return e.fs.Rmdir(context.Background(), c.String("path"), vfs.RmdirOptions{Recursive: c.Bool("recursive")})
				},
			},
			{
				Name:  "ls",
				Flags: []cli.Flag{pathFlag(), &cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}}},
				Action: func(c *cli.Context) error {
					entries, err := e.fs.Readdir(context.Background(), c.String("path"), vfs.ReaddirOptions{Recursive: c.Bool("recursive")})
					if err != nil {
						return err
					}
					for _, ent := range entries {
						marker := ""
						if ent.Type == metadata.TypeDirectory {
							marker = "/"
						}
						fmt.Printf("%s%s\n", ent.Name, marker)
					}
					return nil
				},
			},
		},
	}
}
