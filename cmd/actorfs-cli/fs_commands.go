package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"actorfs/vfs"
)

func pathFlag() cli.Flag {
	return &cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true}
}

func fileCommands() *cli.Command {
	return &cli.Command{
		Name:  "fs",
		Usage: "file-level operations (write, read, stat, rename, ...)",
		Subcommands: []*cli.Command{
			{
				Name:  "write",
				Usage: "write a file, creating or overwriting it",
				Flags: []cli.Flag{
					pathFlag(),
					&cli.StringFlag{Name: "data"},
					&cli.BoolFlag{Name: "stdin"},
					&cli.StringFlag{Name: "tier", Usage: "hot, warm or cold; empty selects by size"},
					&cli.StringFlag{Name: "flag", Usage: "\"\", wx or ax"},
				},
				Action: func(c *cli.Context) error {
					data, err := readData(c)
					if err != nil {
						return err
					}
					res, err := e.fs.WriteFile(context.Background(), c.String("path"), data, vfs.WriteOptions{
						Tier: c.String("tier"), Flag: c.String("flag"),
					})
					if err != nil {
						return err
					}
					fmt.Printf("wrote %d bytes, tier=%s\n", res.BytesWritten, res.Tier)
					return nil
				},
			},
			{
				Name:  "read",
				Usage: "print a file's content to stdout",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					data, err := e.fs.ReadFile(context.Background(), c.String("path"))
					if err != nil {
						return err
					}
					fmt.Print(string(data))
					return nil
				},
			},
			{
				Name:  "append",
				Usage: "append bytes to an existing file (or create it)",
				Flags: []cli.Flag{pathFlag(), &cli.StringFlag{Name: "data"}, &cli.BoolFlag{Name: "stdin"}},
				Action: func(c *cli.Context) error {
					data, err := readData(c)
					if err != nil {
						return err
					}
					res, err := e.fs.AppendFile(context.Background(), c.String("path"), data)
					if err != nil {
						return err
					}
					fmt.Printf("file is now %d bytes\n", res.BytesWritten)
					return nil
				},
			},
			{
				Name:  "cp",
				Usage: "copy a file",
				Flags: []cli.Flag{&cli.StringFlag{Name: "from", Required: true}, &cli.StringFlag{Name: "to", Required: true}},
				Action: func(c *cli.Context) error {
					_, err := e.fs.CopyFile(context.Background(), c.String("from"), c.String("to"))
					return err
				},
			},
			{
				Name:  "mv",
				Usage: "rename/move a file or directory",
				Flags: []cli.Flag{&cli.StringFlag{Name: "from", Required: true}, &cli.StringFlag{Name: "to", Required: true}},
				Action: func(c *cli.Context) error {
					return e.fs.Rename(context.Background(), c.String("from"), c.String("to"))
				},
			},
			{
				Name:  "rm",
				Usage: "unlink a file",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					return e.fs.Unlink(context.Background(), c.String("path"))
				},
			},
			{
				Name:  "stat",
				Usage: "show metadata, following symlinks",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error { return printStat(c, false) },
			},
			{
				Name:  "lstat",
				Usage: "show metadata, without following symlinks",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error { return printStat(c, true) },
			},
			{
				Name:  "chmod",
				Usage: "change permission bits",
				Flags: []cli.Flag{pathFlag(), &cli.UintFlag{Name: "mode", Required: true}},
				Action: func(c *cli.Context) error {
					return e.fs.Chmod(context.Background(), c.String("path"), uint32(c.Uint("mode")))
				},
			},
			{
				Name:  "chown",
				Usage: "change owner/group ids",
				Flags: []cli.Flag{pathFlag(), &cli.UintFlag{Name: "uid"}, &cli.UintFlag{Name: "gid"}},
				Action: func(c *cli.Context) error {
					return e.fs.Chown(context.Background(), c.String("path"), uint32(c.Uint("uid")), uint32(c.Uint("gid")))
				},
			},
			{
				Name:  "exists",
				Usage: "check whether a path exists",
				Flags: []cli.Flag{pathFlag()},
				Action: func(c *cli.Context) error {
					ok, err := e.fs.Exists(context.Background(), c.String("path"))
					if err != nil {
						return err
					}
					fmt.Println(ok)
					return nil
				},
			},
		},
	}
}

func printStat(c *cli.Context, lstat bool) error {
	ctx := context.Background()
	path := c.String("path")

	var (
		s   *vfs.Stat
		err error
	)
	if lstat {
		s, err = e.fs.Lstat(ctx, path)
	} else {
		s, err = e.fs.Stat(ctx, path)
	}
	if err != nil {
		return err
	}
	fmt.Printf("type=%s mode=%o size=%d blocks=%d nlink=%d uid=%d gid=%d\n",
		s.Type, s.Mode, s.Size, s.Blocks, s.Nlink, s.UID, s.GID)
	return nil
}
