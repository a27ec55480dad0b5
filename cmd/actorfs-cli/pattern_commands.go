package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"actorfs/pattern"
)

func patternCommand() *cli.Command {
	return &cli.Command{
		Name:  "pattern",
		Usage: "test a gitignore-style glob against a path",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "glob", Aliases: []string{"g"}, Required: true},
			pathFlag(),
		},
		Action: func(c *cli.Context) error {
			m, err := pattern.NewMatcher(c.String("glob"), e.pcache)
			if err != nil {
				return err
			}
			ok, err := m.Match(c.String("path"))
			if err != nil {
				return err
			}
			fmt.Println(ok)
			return nil
		},
	}
}
