/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package rules

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/telemetry"
)

const (
	defaultCacheEntries  = 512
	defaultCacheCooldown = 5 * time.Minute
)

// Compiler turns one expression into a predicate. Implemented outside the
// engine; a nil predicate or an error drops the expression.
type Compiler interface {
	CompileExpression(expr Expression, defaultUserID string) (Predicate, error)
}

// CompileCache memoizes compiled rule sets by content hash. Shared
// process-wide across concurrent refresh runs: lookups and inserts are
// lock-free, only the eviction path takes a lock.
type CompileCache struct {
	compiler   Compiler
	logger     zerolog.Logger
	maxEntries int
	cooldown   time.Duration

	entries sync.Map // uint64 -> *cacheEntry
	count   atomic.Int64
	seq     atomic.Uint64

	cleanupMu   sync.Mutex
	lastCleanup time.Time
}

type cacheEntry struct {
	compiled *CompiledRuleSet
	seq      uint64
}

// NewCompileCache builds a cache around the given compiler. Non-positive
// maxEntries or cooldown fall back to defaults.
func NewCompileCache(compiler Compiler, maxEntries int, cooldown time.Duration, logger zerolog.Logger) *CompileCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	if cooldown <= 0 {
		cooldown = defaultCacheCooldown
	}
	return &CompileCache{
		compiler:   compiler,
		logger:     logger.With().Str("component", "compile_cache").Logger(),
		maxEntries: maxEntries,
		cooldown:   cooldown,
	}
}

// Compile returns the compiled form of the rule set for the given list and
// default user, compiling and caching on miss. Individual expressions that
// fail to compile are logged and dropped; a failure covering the whole rule
// set yields an empty, uncached result.
func (c *CompileCache) Compile(listID string, rs RuleSet, defaultUserID string) *CompiledRuleSet {
	key := ruleSetHash(listID, rs, defaultUserID)

	if v, ok := c.entries.Load(key); ok {
		telemetry.CompileCacheHitsTotal.Inc()
		return v.(*cacheEntry).compiled
	}
	telemetry.CompileCacheMissesTotal.Inc()

	compiled, err := c.compileAll(rs, defaultUserID)
	if err != nil {
		c.logger.Error().Err(err).Str("list", listID).Msg("rule set compilation failed")
		return &CompiledRuleSet{}
	}

	if _, loaded := c.entries.LoadOrStore(key, &cacheEntry{compiled: compiled, seq: c.seq.Add(1)}); !loaded {
		c.count.Add(1)
		telemetry.CompileCacheEntries.Set(float64(c.count.Load()))
	}
	c.maybeEvict()
	return compiled
}

// Len returns the number of cached entries.
func (c *CompileCache) Len() int {
	return int(c.count.Load())
}

func (c *CompileCache) compileAll(rs RuleSet, defaultUserID string) (compiled *CompiledRuleSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			compiled = nil
			err = fmt.Errorf("compile rule set: %v", r)
		}
	}()

	compiled = &CompiledRuleSet{}
	for _, group := range rs.Groups {
		cg := CompiledGroup{}
		for _, expr := range group.Expressions {
			if expr.Field == FieldCollection && expr.ExpandToEpisodes {
				compiled.ExpandCollections = true
			}
			if expr.Special() {
				if expr.Field == FieldSimilarTo && compiled.SimilarityRef == "" {
					compiled.SimilarityRef = expr.Value
				}
				cg.Special = append(cg.Special, expr)
				continue
			}

			pred, cerr := safeCompile(c.compiler, expr, defaultUserID)
			if cerr != nil || pred == nil {
				c.logger.Warn().Err(cerr).
					Str("field", string(expr.Field)).
					Str("operator", string(expr.Operator)).
					Msg("expression failed to compile, dropping")
				continue
			}
			cg.Ordinary = append(cg.Ordinary, CompiledExpression{Source: expr, Match: pred})
		}
		compiled.Groups = append(compiled.Groups, cg)
	}
	return compiled, nil
}

// safeCompile guards against a panicking compiler: the expression is
// dropped, not the run.
func safeCompile(compiler Compiler, expr Expression, defaultUserID string) (pred Predicate, err error) {
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = fmt.Errorf("compiler panic: %v", r)
		}
	}()
	return compiler.CompileExpression(expr, defaultUserID)
}

// maybeEvict removes roughly the oldest-inserted half of the cache once it
// exceeds the high-water mark, at most once per cooldown. Only one cleanup
// runs at a time; the state is re-checked after taking the lock so
// concurrent callers do not evict twice.
func (c *CompileCache) maybeEvict() {
	if int(c.count.Load()) <= c.maxEntries {
		return
	}

	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()

	if time.Since(c.lastCleanup) < c.cooldown {
		return
	}
	if int(c.count.Load()) <= c.maxEntries {
		return
	}
	c.lastCleanup = time.Now()

	type keyed struct {
		key uint64
		seq uint64
	}
	var all []keyed
	c.entries.Range(func(k, v any) bool {
		all = append(all, keyed{key: k.(uint64), seq: v.(*cacheEntry).seq})
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	evicted := 0
	for _, e := range all[:len(all)/2] {
		c.entries.Delete(e.key)
		c.count.Add(-1)
		evicted++
	}
	telemetry.CompileCacheEvictionsTotal.Add(float64(evicted))
	telemetry.CompileCacheEntries.Set(float64(c.count.Load()))
	c.logger.Debug().Int("evicted", evicted).Int("remaining", c.Len()).Msg("compile cache cleaned up")
}

// ruleSetHash computes the deterministic content hash of (list identity,
// every expression incl. modifiers, effective default user). Compilation is
// user-sensitive: expressions without an explicit user fall back to the
// default user, so the same rules compile differently per caller.
func ruleSetHash(listID string, rs RuleSet, defaultUserID string) uint64 {
	h := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = h.WriteString(p)
			_, _ = h.Write([]byte{0})
		}
	}

	write(listID, defaultUserID)
	for _, group := range rs.Groups {
		write("|group")
		for _, e := range group.Expressions {
			write(string(e.Field), string(e.Operator), e.Value, e.UserID,
				strconv.FormatBool(e.IncludeParentSeries),
				strconv.FormatBool(e.DefaultTrackOnly),
				strconv.FormatBool(e.CollectionsOnly),
				strconv.FormatBool(e.ExpandToEpisodes))
		}
	}
	return h.Sum64()
}
