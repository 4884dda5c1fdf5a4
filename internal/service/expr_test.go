package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, src string) *CompiledExpr {
	t.Helper()
	e, err := CompileExpr(src)
	require.NoError(t, err, "compiling %q", src)
	return e
}

func TestExprEvaluation(t *testing.T) {
	env := map[string]any{
		"game": map[string]any{
			"day_of_week": "sunday",
			"venue_id":    "cameron",
			"date":        time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC),
			"metadata":    map[string]any{"tv_network": "ESPN"},
		},
		"params": map[string]any{
			"max_games": 3.0,
			"teams":     []any{"duke", "unc"},
			"blocked":   true,
		},
	}

	tests := []struct {
		src  string
		want any
	}{
		{"1 + 2 * 3", 7.0},
		{"(1 + 2) * 3", 9.0},
		{"10 / 4 - 0.5", 2.0},
		{"-params.max_games", -3.0},
		{"2 < 3", true},
		{"3 <= 3", true},
		{"2 > 3", false},
		{"params.max_games >= 3", true},
		{"params.max_games == 3", true},
		{"params.max_games != 3", false},
		{"'a' + 'b'", "ab"},
		{"'abc' == 'abc'", true},
		{"game.day_of_week != 'sunday'", false},
		{"!params.blocked", false},
		{"true && false", false},
		{"true || false", true},
		{"lower('ESPN')", "espn"},
		{"contains(game.venue_id, 'cam')", true},
		{"contains(params.teams, 'duke')", true},
		{"contains(params.teams, 'wake')", false},
		{"len(params.teams)", 2.0},
		{"len('abcd')", 4.0},
		{"abs(0 - 5)", 5.0},
		{"min(2, 9)", 2.0},
		{"max(2, 9)", 9.0},
		{"game.metadata.tv_network == 'ESPN'", true},
		// Missing identifiers resolve to nil and compare equal to null.
		{"game.missing == null", true},
		{"game.missing.deeper == null", true},
	}
	for _, tt := range tests {
		e := mustCompile(t, tt.src)
		got, err := e.Eval(env)
		require.NoError(t, err, "evaluating %q", tt.src)
		assert.Equal(t, tt.want, got, "expression %q", tt.src)
	}
}

func TestExprTimeComparisons(t *testing.T) {
	early := time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC)
	env := map[string]any{
		"game":   map[string]any{"date": early},
		"params": map[string]any{"cutoff": "2026-01-11T00:00:00Z"},
	}

	ok, err := mustCompile(t, "game.date < params.cutoff").EvalBool(env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mustCompile(t, "game.date >= params.cutoff").EvalBool(env)
	require.NoError(t, err)
	assert.False(t, ok)

	hours, err := mustCompile(t, "hoursBetween(game.date, params.cutoff)").Eval(env)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, hours, 1e-9)
}

func TestExprShortCircuit(t *testing.T) {
	// The right side of && is never evaluated when the left is false, so the
	// division by zero must not surface.
	env := map[string]any{"n": 0.0}
	ok, err := mustCompile(t, "n > 0 && 1 / n > 0").EvalBool(env)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mustCompile(t, "n == 0 || 1 / n > 0").EvalBool(env)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExprForbiddenIdentifiers(t *testing.T) {
	for _, src := range []string{
		"eval('1')",
		"require('fs')",
		"Function()",
		"function",
		"setTimeout",
		"process.env.PATH == ''",
		"game.exec == null",
	} {
		_, err := CompileExpr(src)
		require.Error(t, err, "source %q", src)
		assert.Contains(t, err.Error(), "not permitted")
	}
}

func TestExprListAndMapEqualityErrors(t *testing.T) {
	env := map[string]any{
		"params": map[string]any{
			"teams":  []any{"duke", "unc"},
			"lineup": []any{"duke", "unc"},
		},
		"game": map[string]any{
			"metadata": map[string]any{"tv_network": "ESPN"},
		},
	}

	for _, src := range []string{
		"params.teams == params.lineup",
		"params.teams != params.lineup",
		"params.teams == 'duke'",
		"game.metadata == game.metadata",
		"contains(params.teams, params.lineup)",
	} {
		_, err := mustCompile(t, src).Eval(env)
		require.Error(t, err, "source %q", src)
		assert.Contains(t, err.Error(), "cannot compare", "source %q", src)
	}
}

func TestExprCompileErrors(t *testing.T) {
	for _, src := range []string{
		"1 +",
		"(1 + 2",
		"'unterminated",
		"1 @ 2",
		"mystery(1)",
		"game.date.Add(1)",
		"contains(1, 2,",
		"1 2",
	} {
		_, err := CompileExpr(src)
		assert.Error(t, err, "source %q", src)
	}
}

func TestExprRuntimeErrors(t *testing.T) {
	env := map[string]any{"s": "text"}

	_, err := mustCompile(t, "1 / 0").Eval(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")

	_, err = mustCompile(t, "s - 1").Eval(env)
	assert.Error(t, err)

	_, err = mustCompile(t, "missing + 1").Eval(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")

	_, err = mustCompile(t, "!s").Eval(env)
	assert.Error(t, err)

	_, err = mustCompile(t, "lower(5)").Eval(env)
	assert.Error(t, err)

	_, err = mustCompile(t, "contains(5, 1)").Eval(env)
	assert.Error(t, err)

	_, err = mustCompile(t, "len(5)").Eval(env)
	assert.Error(t, err)

	// Non-boolean results are rejected by the boolean entry point.
	_, err = mustCompile(t, "1 + 1").EvalBool(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not produce a boolean")
}
