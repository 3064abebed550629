package analysis

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evmtools/evmanalyzer/core/bytecode"
)

// Analyses are pure functions of the code, so they are shared process-wide
// behind a keccak-keyed LRU. Entries are write-once: a cached CodeAnalysis is
// immutable and safe to hand to concurrent readers.

const analysisCacheCap = 4096

var (
	cacheEnabled  bool
	analysisCache *lru.Cache[common.Hash, *CodeAnalysis]

	cacheHitCounter  = metrics.NewRegisteredCounter("analysis/cache/hit", nil)
	cacheMissCounter = metrics.NewRegisteredCounter("analysis/cache/miss", nil)
)

func init() {
	analysisCache, _ = lru.New[common.Hash, *CodeAnalysis](analysisCacheCap)
}

func EnableCache() {
	cacheEnabled = true
}

func DisableCache() {
	cacheEnabled = false
}

func CacheEnabled() bool {
	return cacheEnabled
}

// LoadOrAnalyze returns the cached analysis for b, computing and caching it
// on a miss. With the cache disabled it degrades to a plain Analyze.
func LoadOrAnalyze(b *bytecode.Bytecode) *CodeAnalysis {
	if !cacheEnabled {
		return Analyze(b)
	}
	if a, ok := analysisCache.Get(b.Hash()); ok {
		cacheHitCounter.Inc(1)
		return a
	}
	cacheMissCounter.Inc(1)
	a := Analyze(b)
	analysisCache.Add(b.Hash(), a)
	return a
}

// DropCached evicts the analysis for the given code hash.
func DropCached(hash common.Hash) {
	analysisCache.Remove(hash)
}

// PurgeCache drops every cached analysis.
func PurgeCache() {
	analysisCache.Purge()
}
