package cipher

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// A transform chain is a sequence of three primitive operations applied to
// the signature rune slice.
type transformStep struct {
	op  string // rev, spl, swp
	arg int
}

var (
	parseMu    sync.Mutex
	parseCache = make(map[string][]transformStep)

	decipherFnRegexes = []*regexp.Regexp{
		regexp.MustCompile(`function\s*([a-zA-Z0-9$]*)\s*\(\s*([a-zA-Z0-9$]+)\s*\)\s*\{([\s\S]*?)\}`),
		regexp.MustCompile(`([a-zA-Z0-9$]+)\s*=\s*\(([a-zA-Z0-9$]+)\)\s*=>\s*\{([\s\S]*?)\}`),
		regexp.MustCompile(`([a-zA-Z0-9$]+)\s*:\s*function\s*\(\s*([a-zA-Z0-9$]+)\s*\)\s*\{([\s\S]*?)\}`),
	}
	objFuncRegex = regexp.MustCompile(`([a-zA-Z0-9$]+)\s*:\s*function\(a(?:,b)?\)\s*\{([\s\S]*?)\}`)
)

func scriptKey(script string) string {
	h := sha1.Sum([]byte(script))
	return hex.EncodeToString(h[:])
}

// tryRegexDecipher parses the player script statically and applies the
// transform chain without JS execution. Returns false when the script does
// not match any known shape; the caller then falls back to the interpreter.
func tryRegexDecipher(script, signature string) (string, bool) {
	key := scriptKey(script)
	parseMu.Lock()
	steps, ok := parseCache[key]
	parseMu.Unlock()

	if !ok {
		steps = parseTransformChain(script)
		parseMu.Lock()
		parseCache[key] = steps
		parseMu.Unlock()
	}
	if len(steps) == 0 {
		return "", false
	}

	r := []rune(signature)
	for _, st := range steps {
		switch st.op {
		case "rev":
			r = reverseRunes(r)
		case "spl":
			r = spliceRunes(r, st.arg)
		case "swp":
			r = swapRunes(r, st.arg)
		}
	}
	return string(r), true
}

// parseTransformChain locates the decipher function (split/join over its
// parameter), the transform object it dispatches to, and the call sequence.
func parseTransformChain(script string) []transformStep {
	var param, body string
	for _, re := range decipherFnRegexes {
		for _, m := range re.FindAllStringSubmatch(script, -1) {
			p, b := m[2], m[3]
			if strings.Contains(b, p+`.split("")`) && strings.Contains(b, `return `+p+`.join("")`) {
				param, body = p, b
				break
			}
		}
		if param != "" {
			break
		}
	}
	if param == "" {
		return nil
	}

	// Direct form: the function body calls reverse/splice on the param
	// itself instead of going through a transform object.
	revCallRe := regexp.MustCompile(`\breverse\(\s*` + regexp.QuoteMeta(param) + `\s*\)`)
	splCallRe := regexp.MustCompile(`\bsplice\(\s*` + regexp.QuoteMeta(param) + `\s*,\s*(\d+)\s*\)`)
	if revCallRe.MatchString(body) {
		if m := splCallRe.FindStringSubmatch(body); len(m) == 2 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return []transformStep{{op: "rev"}, {op: "spl", arg: n}, {op: "rev"}}
			}
		}
	}

	objNameRe := regexp.MustCompile(`([a-zA-Z0-9$]+)\.[a-zA-Z0-9$]+\(` + regexp.QuoteMeta(param) + `(?:,\s*\d+)?\)`)
	om := objNameRe.FindStringSubmatch(body)
	if len(om) < 2 {
		return nil
	}
	obj := om[1]

	objRe := regexp.MustCompile(`(?:var|let|const)\s+` + regexp.QuoteMeta(obj) + `\s*=\s*\{([\s\S]*?)\}\s*;?`)
	om2 := objRe.FindStringSubmatch(script)
	if len(om2) < 2 {
		return nil
	}
	nameToOp := make(map[string]string)
	for _, fm := range objFuncRegex.FindAllStringSubmatch(om2[1], -1) {
		fbody := fm[2]
		switch {
		case strings.Contains(fbody, ".reverse()"):
			nameToOp[fm[1]] = "rev"
		case strings.Contains(fbody, ".splice("):
			nameToOp[fm[1]] = "spl"
		case strings.Contains(fbody, "a[0]=a[") && strings.Contains(fbody, "%a.length]"):
			nameToOp[fm[1]] = "swp"
		}
	}
	if len(nameToOp) == 0 {
		return nil
	}

	callRe := regexp.MustCompile(regexp.QuoteMeta(obj) + `\.([a-zA-Z0-9$]+)\(` + regexp.QuoteMeta(param) + `(?:,\s*(\d+))?\)`)
	var steps []transformStep
	for _, c := range callRe.FindAllStringSubmatch(body, -1) {
		op, ok := nameToOp[c[1]]
		if !ok {
			continue
		}
		arg := 0
		if len(c) >= 3 && c[2] != "" {
			if v, err := strconv.Atoi(c[2]); err == nil {
				arg = v
			}
		}
		steps = append(steps, transformStep{op: op, arg: arg})
	}
	return steps
}

func reverseRunes(s []rune) []rune {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
	return s
}

func spliceRunes(s []rune, n int) []rune {
	if n < 0 || n > len(s) {
		return s
	}
	return s[n:]
}

func swapRunes(s []rune, n int) []rune {
	if len(s) <= 1 {
		return s
	}
	n %= len(s)
	if n < 0 {
		n += len(s)
	}
	s[0], s[n] = s[n], s[0]
	return s
}
