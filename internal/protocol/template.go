package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jangala-dev/daqd/internal/daqerr"
)

// placeholderRe matches ${var} and ${var:FMT} tokens in a command template
// (spec.md §4.9 step 2, §6.3).
var placeholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([0-9]*[Xx]?))?\}`)

// Substitute renders tmpl against vars, replacing every ${var}/${var:FMT}
// placeholder. FMT is standard integer formatting: an optional zero-padded
// decimal width, optionally followed by X (uppercase hex) or x (lowercase
// hex) — e.g. "08X" is an 8-digit zero-padded uppercase hex field. A bare
// ${var} with no FMT renders the value with Go's default %v formatting.
func Substitute(tmpl string, vars map[string]interface{}) (string, error) {
	var outerErr error
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		name, fmtSpec := groups[1], groups[2]

		v, ok := vars[name]
		if !ok {
			outerErr = daqerr.New(daqerr.InvalidArgument, "protocol.Substitute", "undefined template variable "+name)
			return match
		}
		rendered, err := renderField(v, fmtSpec)
		if err != nil {
			outerErr = err
			return match
		}
		return rendered
	})
	if outerErr != nil {
		return "", outerErr
	}
	return out, nil
}

func renderField(v interface{}, fmtSpec string) (string, error) {
	if fmtSpec == "" {
		return fmt.Sprintf("%v", v), nil
	}

	width := 0
	hex := byte(0)
	digits := strings.TrimRightFunc(fmtSpec, func(r rune) bool { return r == 'X' || r == 'x' })
	if digits != "" {
		w, err := strconv.Atoi(digits)
		if err != nil {
			return "", daqerr.New(daqerr.ValidationFailed, "protocol.renderField", "invalid format width "+fmtSpec)
		}
		width = w
	}
	if strings.HasSuffix(fmtSpec, "X") {
		hex = 'X'
	} else if strings.HasSuffix(fmtSpec, "x") {
		hex = 'x'
	}

	n, err := toInt64(v)
	if err != nil {
		return "", err
	}

	switch hex {
	case 'X':
		return fmt.Sprintf("%0*X", width, n), nil
	case 'x':
		return fmt.Sprintf("%0*x", width, n), nil
	default:
		return fmt.Sprintf("%0*d", width, n), nil
	}
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, daqerr.New(daqerr.InvalidArgument, "protocol.toInt64", fmt.Sprintf("value %v is not numeric", v))
	}
}
