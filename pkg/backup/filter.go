package backup

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
)

// ArtifactInfo is the environment one filter expression is evaluated
// against, one candidate artifact at a time.
type ArtifactInfo struct {
	Name string        // base name of the artifact
	Path string        // full path on the host
	Size int64         // size in bytes
	Age  time.Duration // now minus modification time
}

// Artifact filter DSL rewrites. Lowercase field names and human units are
// rewritten into the Go identifiers and helper calls expr evaluates.
var (
	ageRe    = regexp.MustCompile(`\b(?i)(age)\s*(<=|>=|<|>|==|!=)\s*([0-9]+(?:\.[0-9]+)?[smhdwMy])\b`)
	sizeRe   = regexp.MustCompile(`\b(?i)(size)\s*(<=|>=|<|>|==|!=)\s*([0-9]+(?:\.[0-9]+)?(?:B|KB|MB|GB|TB|KiB|MiB|GiB|TiB))\b`)
	identRe  = regexp.MustCompile(`\b(?i)(age|size|name|path)\b`)
	fieldMap = map[string]string{"age": "Age", "size": "Size", "name": "Name", "path": "Path"}

	unitFactors = map[string]float64{
		"B":  1,
		"KB": 1e3, "MB": 1e6, "GB": 1e9, "TB": 1e12,
		"KiB": 1 << 10, "MiB": 1 << 20, "GiB": 1 << 30, "TiB": 1 << 40,
	}
)

const FilterHelp = "Filter backup artifacts by expression: fields(name/path <string>, " +
	"size <bytes[like 1B, 2KB, 3MiB]>, age <duration[like 30m, 12h, 7d, 1M, 2y]>); " +
	"operators(==,!=,<,>,<=,>=); helpers(glob([name|path], pattern), regex([name|path], pattern)); " +
	"logic(and|or|not); Example: --filter=\"age < 90d and glob(name, '*.zip')\""

type ArtifactFilter func(ArtifactInfo) (bool, error)

// CompileFilter turns a DSL expression into a filter function.
func CompileFilter(query string) (ArtifactFilter, error) {
	q := preprocessDSL(query)

	prog, err := expr.Compile(q,
		expr.Env(ArtifactInfo{}),
		expr.Function("dur", func(params ...any) (any, error) { return parseExtendedDuration(params[0].(string)) }),
		expr.Function("bytes", func(params ...any) (any, error) { return parseBytes(params[0].(string)) }),
		expr.Function("glob", func(params ...any) (any, error) { return globMatch(params[0].(string), params[1].(string)) }),
		expr.Function("regex", func(params ...any) (any, error) { return regexMatch(params[0].(string), params[1].(string)) }),
	)
	if err != nil {
		return nil, err
	}

	return func(ai ArtifactInfo) (bool, error) {
		out, err := expr.Run(prog, ai)
		if err != nil {
			return false, fmt.Errorf("filter eval %q on %s: %w", query, ai.Path, err)
		}
		result, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("filter expression resulted in a non-boolean value of type %T. Make sure your filter is a valid comparison (e.g., 'size>100MB')", out)
		}
		return result, nil
	}, nil
}

// preprocessDSL applies all DSL→Go rewrites.
func preprocessDSL(q string) string {
	q = ageRe.ReplaceAllString(q, `$1 $2 dur("$3")`)
	q = sizeRe.ReplaceAllString(q, `$1 $2 bytes("$3")`)
	q = identRe.ReplaceAllStringFunc(q, func(s string) string {
		if goF, ok := fieldMap[strings.ToLower(s)]; ok {
			return goF
		}
		return s
	})
	return q
}

// parseExtendedDuration supports standard and custom units (d, w, M, y).
func parseExtendedDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	var factor time.Duration
	num, unit := s[:len(s)-1], s[len(s)-1:]
	switch unit {
	case "d":
		factor = 24 * time.Hour
	case "w":
		factor = 7 * 24 * time.Hour
	case "M":
		factor = 30 * 24 * time.Hour
	case "y":
		factor = 365 * 24 * time.Hour
	default:
		return time.ParseDuration(s)
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(f * float64(factor)), nil
}

// parseBytes converts size strings into byte counts.
func parseBytes(sizeStr string) (int64, error) {
	i := len(sizeStr)
	for i > 0 && (sizeStr[i-1] < '0' || sizeStr[i-1] > '9') {
		i--
	}
	num, unit := sizeStr[:i], strings.TrimSpace(sizeStr[i:])
	if unit == "" {
		unit = "B"
	}
	mul, ok := unitFactors[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q", unit)
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}
	return int64(f * mul), nil
}

func globMatch(s, pattern string) (bool, error) {
	return filepath.Match(pattern, s)
}

func regexMatch(s, pattern string) (bool, error) {
	return regexp.MatchString(pattern, s)
}
