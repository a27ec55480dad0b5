package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"actorfs/metrics"
)

// statsCommand prints the tier engine's per-tier byte counts plus the
// prepared-statement and pattern-compile LRU hit ratios, and publishes the
// same numbers to the process-wide Prometheus collectors in actorfs/metrics.
// The CLI itself serves no /metrics endpoint.
func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "report tier placement and cache hit-ratio statistics",
		Action: func(c *cli.Context) error {
			ctx := context.Background()

			tierStats, err := e.blobs.GetStats(ctx)
			if err != nil {
				return err
			}
			for tier, st := range tierStats {
				fmt.Printf("tier %-4s  count=%-6d  bytes=%d\n", tier, st.Count, st.TotalSize)
			}

			sc := e.meta.StmtCache().Stats()
			metrics.ReportStmtCache(sc.HitRatio(), sc.Evictions)
			fmt.Printf("stmtcache   hit_ratio=%.3f  evictions=%d  created=%d\n", sc.HitRatio(), sc.Evictions, sc.TotalCreated)

			pc := e.pcache.Stats()
			metrics.ReportPatternCache(pc.HitRate())
			fmt.Printf("patterns    hit_ratio=%.3f  size=%d/%d\n", pc.HitRate(), pc.Size, pc.Capacity)

			return nil
		},
	}
}
