package label

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

var hexEscape = regexp.MustCompile(`\\x\{([0-9A-Fa-f]{1,6})\}`)

// PatternCache compiles zone character-class tables once. Tables are written
// in PCRE syntax with delimiters, e.g. /^[a-z0-9-]+$/i, and may use
// lookarounds, so they run on a backtracking engine bounded by a timeout.
type PatternCache struct {
	timeout  time.Duration
	mu       sync.RWMutex
	compiled map[string]*regexp2.Regexp
}

func NewPatternCache(timeout time.Duration) *PatternCache {
	return &PatternCache{timeout: timeout, compiled: make(map[string]*regexp2.Regexp)}
}

// Match reports whether s matches the table. A table that does not compile
// or a match that exceeds the timeout is returned as an error.
func (c *PatternCache) Match(table, s string) (bool, error) {
	re, err := c.get(table)
	if err != nil {
		return false, err
	}
	ok, err := re.MatchString(s)
	if err != nil {
		return false, fmt.Errorf("match idn table: %w", err)
	}
	return ok, nil
}

func (c *PatternCache) get(table string) (*regexp2.Regexp, error) {
	c.mu.RLock()
	re, ok := c.compiled[table]
	c.mu.RUnlock()
	if ok {
		return re, nil
	}

	expr, opts, err := translatePCRE(table)
	if err != nil {
		return nil, err
	}
	re, err = regexp2.Compile(expr, opts)
	if err != nil {
		return nil, fmt.Errorf("compile idn table %q: %w", table, err)
	}
	re.MatchTimeout = c.timeout

	c.mu.Lock()
	c.compiled[table] = re
	c.mu.Unlock()
	return re, nil
}

// translatePCRE strips delimiters, maps trailing flags to regexp2 options and
// rewrites \x{HHHH} escapes, which regexp2 does not accept.
func translatePCRE(table string) (string, regexp2.RegexOptions, error) {
	table = strings.TrimSpace(table)
	if len(table) < 2 {
		return "", 0, fmt.Errorf("idn table %q: too short", table)
	}
	delim := table[0]
	end := strings.LastIndexByte(table, delim)
	if end <= 0 {
		return "", 0, fmt.Errorf("idn table %q: missing closing delimiter", table)
	}

	var opts regexp2.RegexOptions
	for _, flag := range table[end+1:] {
		switch flag {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		case 'u', 'D':
		default:
			return "", 0, fmt.Errorf("idn table %q: unsupported flag %q", table, flag)
		}
	}

	expr := hexEscape.ReplaceAllStringFunc(table[1:end], func(m string) string {
		hex := hexEscape.FindStringSubmatch(m)[1]
		cp, _ := strconv.ParseUint(hex, 16, 32)
		if cp <= 0xFFFF {
			return fmt.Sprintf(`\u%04X`, cp)
		}
		return regexp2.Escape(string(rune(cp)))
	})
	return expr, opts, nil
}
