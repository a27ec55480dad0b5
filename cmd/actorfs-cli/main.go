// Command actorfs-cli is a urfave/cli front end over the file layer, the
// branch manager and the pattern matcher: a single Before hook opens the
// storage stack once, every subcommand operates through it, an After hook
// closes it.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	badger4 "github.com/ipfs/go-ds-badger4"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"actorfs/blobtier"
	"actorfs/branch"
	"actorfs/config"
	"actorfs/metadata"
	"actorfs/pagestore"
	"actorfs/pattern"
	"actorfs/stmtcache"
	"actorfs/storage"
	"actorfs/vfs"
)

// env bundles the storage stack a single CLI invocation operates over.
type env struct {
	db       storage.RowStore
	meta     *metadata.Store
	blobs    *blobtier.Engine
	fs       *vfs.FS
	branches *branch.Store
	bmgr     *branch.Manager
	pcache   *pattern.Cache
}

var e *env

func openEnv(c *cli.Context) error {
	if e != nil {
		return nil
	}

	dataDir := c.String("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if !c.Bool("verbose") {
		logger = logger.Level(zerolog.WarnLevel)
	}

	db, err := storage.OpenSqlite(filepath.Join(dataDir, "metadata.db"), storage.DefaultSqliteOptions())
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}

	stmts := stmtcache.New(db, 64)
	meta := metadata.New(db, stmts, logger)
	pages := pagestore.New(db)

	// Warm/cold tiers are backed by in-memory buckets: this tree has no
	// disk-resident BucketDriver implementation (only memory, S3 and
	// badger's CASStorage adapter), so a CLI run's warm/cold placements
	// do not survive the process. Metadata and hot-tier pages, both
	// sqlite-backed, do.
	warm := storage.NewMemoryBucket("warm")
	cold := storage.NewMemoryBucket("cold")
	blobs := blobtier.New(db, pages, warm, cold, config.Default(), logger)

	objects, err := storage.NewBadgerCASStorage(filepath.Join(dataDir, "objects"), &badger4.DefaultOptions)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	fs := vfs.New(meta, blobs, objects, logger)

	branches := branch.New(db)
	bmgr := branch.NewManager(branches, func(ctx context.Context, data []byte) (string, int64, error) {
		if err := fs.Mkdir(ctx, "/.branch-objects", vfs.MkdirOptions{Recursive: true}); err != nil {
			return "", 0, err
		}
		sum := sha256.Sum256(data)
		path := "/.branch-objects/" + hex.EncodeToString(sum[:])
		res, err := fs.WriteFile(ctx, path, data, vfs.WriteOptions{})
		return hex.EncodeToString(sum[:]), res.BytesWritten, err
	})

	e = &env{db: db, meta: meta, blobs: blobs, fs: fs, branches: branches, bmgr: bmgr, pcache: pattern.NewCache(config.Default().PatternCacheCapacity)}
	return nil
}

func closeEnv(*cli.Context) error {
	if e == nil {
		return nil
	}
	return e.db.Close()
}

func main() {
	app := &cli.App{
		Name:  "actorfs-cli",
		Usage: "inspect and drive an actorfs instance from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Aliases: []string{"d"}, Value: ".actorfs", Usage: "directory holding metadata.db and the object store", EnvVars: []string{"ACTORFS_DATA_DIR"}},
			&cli.BoolFlag{Name: "verbose"},
		},
		Before: openEnv,
		After:  closeEnv,
		Commands: []*cli.Command{
			fileCommands(),
			dirCommands(),
			linkCommands(),
			tierCommand(),
			branchCommand(),
			patternCommand(),
			gcCommand(),
			statsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func readData(c *cli.Context) ([]byte, error) {
	if data := c.String("data"); data != "" {
		return []byte(data), nil
	}
	if c.Bool("stdin") {
		return io.ReadAll(os.Stdin)
	}
	return nil, fmt.Errorf("provide --data or --stdin")
}
