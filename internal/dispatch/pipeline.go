package dispatch

import (
	"github.com/Ning0612/lzxauto/internal/cache"
	"github.com/Ning0612/lzxauto/internal/compact"
	"github.com/Ning0612/lzxauto/internal/domain"
	"github.com/Ning0612/lzxauto/internal/logger"
)

// Compactor runs the compaction primitive and reports on-disk sizes
type Compactor interface {
	Compact(path string, force bool) (compact.Result, error)
	ClearCompressedFlag(path string) error
	Size(path string) uint64
}

// Reporter observes per-file outcomes (progress display, metrics)
type Reporter interface {
	Report(item domain.WorkItem, outcome domain.Outcome)
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	// SkipExtensions are matched exactly against the file extension
	SkipExtensions []string

	// ClusterSize rounds logical sizes for the uncompressed estimate
	ClusterSize uint64

	// Reporter is optional
	Reporter Reporter
}

// Pipeline decides and performs the work for one file
type Pipeline struct {
	cache     *cache.Cache
	compactor Compactor
	stats     *domain.SessionStats
	skip      map[string]struct{}
	cluster   uint64
	reporter  Reporter
}

// NewPipeline creates a pipeline sharing c and stats with its caller
func NewPipeline(c *cache.Cache, comp Compactor, stats *domain.SessionStats, opts PipelineOptions) *Pipeline {
	skip := make(map[string]struct{}, len(opts.SkipExtensions))
	for _, ext := range opts.SkipExtensions {
		skip[ext] = struct{}{}
	}

	return &Pipeline{
		cache:     c,
		compactor: comp,
		stats:     stats,
		skip:      skip,
		cluster:   opts.ClusterSize,
		reporter:  opts.Reporter,
	}
}

// Handle processes item and records its outcome
func (p *Pipeline) Handle(item domain.WorkItem) {
	outcome := p.Process(item)
	p.stats.Record(outcome)
	if p.reporter != nil {
		p.reporter.Report(item, outcome)
	}
}

// Process runs the per-file steps and returns the outcome without recording it
func (p *Pipeline) Process(item domain.WorkItem) domain.Outcome {
	log := logger.Get()

	p.stats.UncompressedBytes.Add(compact.RoundToCluster(item.Size, p.cluster))

	if _, ok := p.skip[item.Ext()]; ok {
		log.Debug("skipping file by extension", "path", item.Path)
		return domain.OutcomeSkippedExtension
	}

	if item.Attrs.Has(domain.AttrSystem) {
		log.Debug("skipping system file", "path", item.Path)
		return domain.OutcomeSkippedAttribute
	}

	force := false
	if item.Attrs.Has(domain.AttrCompressed) {
		if err := p.compactor.ClearCompressedFlag(item.Path); err != nil {
			log.Warn("failed to clear native compression", "path", item.Path, "error", err)
			return domain.OutcomeFailed
		}
		force = true
	}

	if item.Size == 0 {
		return domain.OutcomeSkippedEmpty
	}

	id := cache.IdentityOf(item.Path)
	before := p.compactor.Size(item.Path)
	if sig, ok := p.cache.Get(id); ok && sig == before {
		log.Debug("skipping unchanged file", "path", item.Path, "signature", sig)
		return domain.OutcomeSkippedUnchanged
	}

	log.Info("compacting file", "path", item.Path, "force", force)
	res, err := p.compactor.Compact(item.Path, force)
	if err != nil {
		log.Warn("compaction failed",
			"path", item.Path,
			"exit_code", res.ExitCode,
			"error", err,
			"output", res.Output)
		return domain.OutcomeFailed
	}
	log.Debug("compact output", "path", item.Path, "output", res.Output)

	after := res.Signature
	p.cache.Set(id, after)

	p.stats.BytesBefore.Add(int64(before))
	p.stats.BytesAfter.Add(int64(after))
	if before > after {
		p.stats.SavedBytes.Add(int64(before - after))
	}

	return domain.OutcomeProcessed
}
