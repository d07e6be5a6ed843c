package repository

import (
	"context"
	"strings"
	"time"

	"StockPipe/internal/domain/models"
	applogger "StockPipe/pkg/logger"
	"StockPipe/pkg/storage"
	"StockPipe/pkg/util"
)

// retentionRoots hold daily dt= partitions. history/ is never pruned.
var retentionRoots = []string{logsRoot, processedRoot, tickersRoot}

// Retention deletes daily partitions older than a cutoff.
type Retention struct {
	backend storage.Backend
	l       *applogger.Logger
}

func NewRetention(backend storage.Backend, l *applogger.Logger) *Retention {
	if l == nil {
		l = applogger.Nop()
	}
	return &Retention{backend: backend, l: l}
}

type datedPartition struct {
	prefix string
	date   time.Time
	keys   []string
}

// Prune removes dt= partitions dated before today-days. The newest partition
// of every dataset is kept regardless of age so the next run still has a
// previous universe snapshot to diff against.
func (r *Retention) Prune(ctx context.Context, today time.Time, days int, dryRun bool) (models.PruneResult, error) {
	cutoff := util.AddDays(today, -days)
	res := models.PruneResult{Cutoff: util.FormatDate(cutoff), Deleted: []string{}, DryRun: dryRun}

	for _, root := range retentionRoots {
		keys, err := r.backend.List(ctx, root+"/")
		if err != nil {
			return res, models.NewStorageError("retention.list", "list "+root).WithError(err)
		}
		for _, parts := range groupPartitions(keys) {
			newest := parts[0]
			for _, p := range parts[1:] {
				if p.date.After(newest.date) {
					newest = p
				}
			}
			for _, p := range parts {
				if p.prefix == newest.prefix || !p.date.Before(cutoff) {
					continue
				}
				if !dryRun {
					for _, k := range p.keys {
						if err := r.backend.Delete(ctx, k); err != nil {
							return res, models.NewStorageError("retention.delete", "delete "+k).WithError(err)
						}
					}
				}
				r.l.Info("retention pruned partition",
					applogger.String("partition", p.prefix),
					applogger.Bool("dry_run", dryRun),
				)
				res.Deleted = append(res.Deleted, p.prefix)
			}
		}
	}
	return res, nil
}

// groupPartitions groups keys by dataset (the path before the dt= segment)
// and then by partition.
func groupPartitions(keys []string) map[string][]*datedPartition {
	byPrefix := make(map[string]*datedPartition)
	datasets := make(map[string][]*datedPartition)
	for _, k := range keys {
		seg := storage.Segments(k)
		for i, s := range seg {
			d, ok := util.PartitionDate(s)
			if !ok {
				continue
			}
			prefix := strings.Join(seg[:i+1], "/")
			p, seen := byPrefix[prefix]
			if !seen {
				p = &datedPartition{prefix: prefix, date: d}
				byPrefix[prefix] = p
				dataset := strings.Join(seg[:i], "/")
				datasets[dataset] = append(datasets[dataset], p)
			}
			p.keys = append(p.keys, k)
			break
		}
	}
	return datasets
}
