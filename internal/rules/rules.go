// Package rules implements the rules orchestrator: the bulk
// find-and-mutate pipeline tying the matcher DSL, the action DSL, and the
// cache's FTS index together, per spec §4.7.
package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.sunsetglow.net/rose/internal/action"
	"go.sunsetglow.net/rose/internal/cache"
	"go.sunsetglow.net/rose/internal/config"
	"go.sunsetglow.net/rose/internal/datafile"
	"go.sunsetglow.net/rose/internal/matcher"
	"go.sunsetglow.net/rose/internal/model"
	"go.sunsetglow.net/rose/internal/pathutil"
	"go.sunsetglow.net/rose/internal/rlog"
	"go.sunsetglow.net/rose/internal/tagcodec"
	"go.sunsetglow.net/rose/internal/updater"
)

// Rule is a parsed matcher/actions/ignore triple (spec §4.7 step 1).
type Rule struct {
	Matcher *matcher.Matcher
	Actions []*action.Action
	Ignore  []*matcher.Matcher
}

// ParseRule parses a matcher expression, one or more action expressions
// (each inheriting matcherExpr's matcher for "matched"/bare-kind shorthand),
// and zero or more ignore-matcher expressions.
func ParseRule(matcherExpr string, actionExprs, ignoreExprs []string) (*Rule, error) {
	m, err := matcher.Parse(matcherExpr)
	if err != nil {
		return nil, err
	}
	if len(actionExprs) == 0 {
		return nil, errors.New("rules: rule has no actions")
	}
	actions := make([]*action.Action, 0, len(actionExprs))
	for _, expr := range actionExprs {
		a, err := action.Parse(expr, m)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	ignore := make([]*matcher.Matcher, 0, len(ignoreExprs))
	for _, expr := range ignoreExprs {
		im, err := matcher.Parse(expr)
		if err != nil {
			return nil, err
		}
		ignore = append(ignore, im)
	}
	return &Rule{Matcher: m, Actions: actions, Ignore: ignore}, nil
}

// FieldChange is one tag's before/after value within a TrackChange. Values
// for multi-valued tags are joined with "; " for display purposes only;
// the underlying mutation always operates on the real list.
type FieldChange struct {
	Tag    matcher.Tag
	Before string
	After  string
}

// TrackChange is one track's resolved mutation, still unflushed.
type TrackChange struct {
	TrackID    string
	ReleaseID  string
	SourcePath string
	Changes    []FieldChange

	tags    *model.AudioTags
	newFlag *bool
	dfPath  string
	df      *datafile.Datafile
}

// Plan is the fully-verified, diffed result of running a rule against the
// cache, not yet written to disk (spec §4.7 steps 1-7).
type Plan struct {
	Tracks []*TrackChange

	// SkippedByIgnore lists the source paths of tracks that matched the
	// rule but were dropped by an ignore matcher (step 5), supplemented
	// from original_source/rose-rs/src/rules.rs as a run diagnostic spec.md
	// itself doesn't surface.
	SkippedByIgnore []string
}

// ruleTags returns every tag referenced anywhere in rule (matcher, ignore
// matchers, and actions), deduplicated in first-seen order.
func ruleTags(rule *Rule) []matcher.Tag {
	seen := map[matcher.Tag]bool{}
	var out []matcher.Tag
	add := func(tags []matcher.Tag) {
		for _, t := range tags {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	add(rule.Matcher.Tags)
	for _, im := range rule.Ignore {
		add(im.Tags)
	}
	for _, a := range rule.Actions {
		add(a.Tags)
	}
	return out
}

func touchesNew(tags []matcher.Tag) bool {
	for _, t := range tags {
		if t == matcher.New {
			return true
		}
	}
	return false
}

func readTags(path string) (*model.AudioTags, error) {
	codec, err := tagcodec.ForPath(pathutil.Ext(path))
	if err != nil {
		return nil, err
	}
	return codec.Read(path)
}

func writeTags(path string, tags *model.AudioTags) error {
	codec, err := tagcodec.ForPath(pathutil.Ext(path))
	if err != nil {
		return err
	}
	return codec.Write(path, tags)
}

// Build runs spec §4.7 steps 2-7: query the FTS index, verify candidates
// against live tag data, apply the rule's actions, and diff the result. It
// performs no writes.
func Build(ctx context.Context, store *cache.Store, rule *Rule) (*Plan, error) {
	var candidateIDs []string
	if ftsQuery, queryable := buildFTSQuery(rule.Matcher); queryable {
		ids, err := store.SearchFTS(ctx, ftsQuery)
		if err != nil {
			return nil, fmt.Errorf("rules: fts query: %w", err)
		}
		candidateIDs = ids
	} else {
		// The matcher names only "new", which rules_engine_fts carries
		// UNINDEXED — no FTS shortcut is possible, so every track is a
		// candidate and verification falls through to the datafile
		// (spec §4.7 step 4).
		ids, err := store.AllTrackIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("rules: list tracks: %w", err)
		}
		candidateIDs = ids
	}

	locs, err := store.TrackLocations(ctx, candidateIDs)
	if err != nil {
		return nil, fmt.Errorf("rules: resolve candidates: %w", err)
	}

	if len(candidateIDs) > candidateFetchThreshold {
		candidateIDs, err = prefilterInMemory(ctx, store, rule.Matcher, candidateIDs, locs)
		if err != nil {
			return nil, fmt.Errorf("rules: pre-filter: %w", err)
		}
	}

	tags := ruleTags(rule)
	needsNew := touchesNew(tags)

	plan := &Plan{}
	for _, id := range candidateIDs {
		loc, ok := locs[id]
		if !ok {
			continue
		}
		change, skippedByIgnore, err := resolveTrack(rule, loc, needsNew)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue // source file vanished since the FTS snapshot; races the scan
			}
			return nil, err
		}
		if skippedByIgnore {
			plan.SkippedByIgnore = append(plan.SkippedByIgnore, loc.SourcePath)
			continue
		}
		if change != nil {
			plan.Tracks = append(plan.Tracks, change)
		}
	}
	return plan, nil
}

// resolveTrack runs steps 4-7 for a single candidate: disk re-verification,
// ignore-list filtering, action application, and diffing. A nil
// *TrackChange with no error means the rule matched but produced no
// effective change.
func resolveTrack(rule *Rule, loc cache.TrackLocation, needsNew bool) (change *TrackChange, skippedByIgnore bool, err error) {
	liveTags, err := readTags(loc.SourcePath)
	if err != nil {
		return nil, false, err
	}

	var newFlag *bool
	var dfPath string
	var df *datafile.Datafile
	if needsNew {
		dfPath = filepath.Join(filepath.Dir(loc.SourcePath), datafile.FileName(loc.ReleaseID))
		df, err = datafile.Read(dfPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, false, err
			}
			df = nil
		} else {
			newFlag = &df.New
		}
	}

	get := func(t matcher.Tag) []string { return tagFieldValues(liveTags, newFlag, t) }
	if !matchesAny(rule.Matcher, get) {
		return nil, false, nil // FTS false positive
	}
	for _, im := range rule.Ignore {
		if matchesAny(im, get) {
			return nil, true, nil
		}
	}

	touched := ruleTags(&Rule{Matcher: rule.Matcher, Actions: rule.Actions})
	before := map[matcher.Tag]string{}
	for _, t := range touched {
		before[t] = displayValue(tagFieldValues(liveTags, newFlag, t))
	}

	rec := &action.Record{Tags: liveTags, New: newFlag}
	anyChanged := false
	for _, a := range rule.Actions {
		changed, err := a.Apply(rec)
		if err != nil {
			return nil, false, fmt.Errorf("rules: apply action %q on %s: %w", a.Raw(), loc.SourcePath, err)
		}
		anyChanged = anyChanged || changed
	}
	if !anyChanged {
		return nil, false, nil
	}

	var diffs []FieldChange
	for _, t := range touched {
		after := displayValue(tagFieldValues(liveTags, newFlag, t))
		if after != before[t] {
			diffs = append(diffs, FieldChange{Tag: t, Before: before[t], After: after})
		}
	}
	if len(diffs) == 0 {
		return nil, false, nil
	}

	return &TrackChange{
		TrackID:    loc.TrackID,
		ReleaseID:  loc.ReleaseID,
		SourcePath: loc.SourcePath,
		Changes:    diffs,
		tags:       liveTags,
		newFlag:    newFlag,
		dfPath:     dfPath,
		df:         df,
	}, false, nil
}

func displayValue(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "; "
		}
		out += v
	}
	return out
}

// Decision is the outcome of evaluating Options against a Plan. Rendering
// the diff and collecting the actual y/n or retyped-count answer is a
// front-end concern (spec.md's Non-goals excludes any CLI from this
// module); Decide only resolves which of those the caller must do.
type Decision int

const (
	DecisionProceed Decision = iota
	DecisionConfirmYesNo
	DecisionConfirmCount
	DecisionAbort
)

// Options controls the confirmation behavior of step 8.
type Options struct {
	DryRun                         bool
	ConfirmYes                     bool
	EnterNumberToConfirmAboveCount int
}

// Decide implements spec §4.7 step 8's branching.
func (p *Plan) Decide(opts Options) Decision {
	if opts.DryRun {
		return DecisionAbort
	}
	if opts.EnterNumberToConfirmAboveCount > 0 && len(p.Tracks) > opts.EnterNumberToConfirmAboveCount {
		return DecisionConfirmCount
	}
	if opts.ConfirmYes {
		return DecisionConfirmYesNo
	}
	return DecisionProceed
}

// Apply flushes plan's tag and datafile writes (step 9), then triggers an
// incremental update_cache_for_releases over every affected release's
// source directory. A write failure aborts the remaining writes, per spec
// §7's propagation policy; plan.Tracks[:n] reflects what was already
// applied when n tracks succeeded before the failure (the cache will
// re-scan and pick up the rest on its next run).
func Apply(ctx context.Context, store *cache.Store, cfg *config.Config, logger *rlog.Logger, plan *Plan) (*updater.Result, error) {
	releaseDirs := map[string]bool{}
	for _, tc := range plan.Tracks {
		if err := writeTags(tc.SourcePath, tc.tags); err != nil {
			return nil, fmt.Errorf("rules: write tags for %s: %w", tc.SourcePath, err)
		}
		if tc.newFlag != nil && tc.df != nil {
			tc.df.New = *tc.newFlag
			if _, err := datafile.WriteIfChanged(tc.dfPath, tc.df); err != nil {
				return nil, fmt.Errorf("rules: write datafile for %s: %w", tc.SourcePath, err)
			}
		}
		releaseDirs[filepath.Dir(tc.SourcePath)] = true
	}

	dirs := make([]string, 0, len(releaseDirs))
	for d := range releaseDirs {
		dirs = append(dirs, d)
	}
	if len(dirs) == 0 {
		return &updater.Result{}, nil
	}
	return updater.UpdateCacheForReleases(ctx, store, cfg, logger, dirs, false)
}
