package playerjs

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// program holds everything parsed out of one player JS body: the signature
// scramble operations and the source of the n-parameter transform function.
type program struct {
	sigOps  []sigOp
	nSource string
}

type sigOp func([]byte) []byte

const (
	jsVarStr   = "[a-zA-Z_\\$][a-zA-Z_0-9]*"
	reverseStr = ":function\\(a\\)\\{" +
		"(?:return )?a\\.reverse\\(\\)" +
		"\\}"
	spliceStr = ":function\\(a,b\\)\\{" +
		"a\\.splice\\(0,b\\)" +
		"\\}"
	swapStr = ":function\\(a,b\\)\\{" +
		"var c=a\\[0\\];a\\[0\\]=a\\[b(?:%a\\.length)?\\];a\\[b(?:%a\\.length)?\\]=c(?:;return a)?" +
		"\\}"
)

var (
	actionsObjRegexp = regexp.MustCompile(fmt.Sprintf(
		"(?:var|let|const)\\s+(%s)=\\{((?:(?:%s%s|%s%s|%s%s),?\\n?)+)\\}\\s*;?",
		jsVarStr, jsVarStr, swapStr, jsVarStr, spliceStr, jsVarStr, reverseStr))
	reverseRegexp = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarStr, reverseStr))
	spliceRegexp  = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarStr, spliceStr))
	swapRegexp    = regexp.MustCompile(fmt.Sprintf("(?m)(?:^|,)(%s)%s", jsVarStr, swapStr))

	actionsFuncRegexps = []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(
			"function(?:\\s+%s)?\\(a\\)\\{"+
				"a=a\\.split\\([^\\)]*\\);\\s*"+
				"((?:(?:a=)?%s(?:\\.%s|\\[[^\\]]+\\])\\(a,\\d+\\);?\\s*)+)"+
				"return a\\.join\\([^\\)]*\\)"+
				"\\}", jsVarStr, jsVarStr, jsVarStr)),
		regexp.MustCompile(fmt.Sprintf(
			"%s\\s*=\\s*function\\(a\\)\\{"+
				"a=a\\.split\\([^\\)]*\\);\\s*"+
				"((?:(?:a=)?%s(?:\\.%s|\\[[^\\]]+\\])\\(a,\\d+\\);?\\s*)+)"+
				"return a\\.join\\([^\\)]*\\)"+
				"\\}", jsVarStr, jsVarStr, jsVarStr)),
	}

	nFunctionNameRegexps = []*regexp.Regexp{
		regexp.MustCompile(`\.get\("n"\)\)&&\(b=([a-zA-Z0-9$]{0,3})\[(\d+)\](.+)\|\|([a-zA-Z0-9]{0,3})`),
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\[(\d+)\]\([a-zA-Z0-9$]{1,}\).+\|\|([a-zA-Z0-9$]{1,})`),
		regexp.MustCompile(`\.get\("n"\)\)\s*&&\s*\(b=([a-zA-Z0-9$]{1,})\([a-zA-Z0-9$]{1,}\)`),
	}
)

func parseProgram(jsBody []byte) (*program, error) {
	p := &program{}

	ops, opsErr := parseSigOps(jsBody)
	if opsErr == nil {
		p.sigOps = ops
	}
	nSource, nErr := extractNFunction(jsBody)
	if nErr == nil {
		p.nSource = nSource
	}

	if opsErr != nil && nErr != nil {
		return nil, fmt.Errorf("player js parse: sig: %v; n: %v", opsErr, nErr)
	}
	return p, nil
}

func (p *program) decipherSignature(s string) (string, error) {
	if len(p.sigOps) == 0 {
		return "", errors.New("signature operations unavailable")
	}
	bs := []byte(s)
	for _, op := range p.sigOps {
		bs = op(bs)
	}
	return string(bs), nil
}

func (p *program) decodeN(n string) (string, error) {
	if p.nSource == "" {
		return "", errors.New("n transform function unavailable")
	}
	return evalJavascript(p.nSource, n)
}

func parseSigOps(jsBody []byte) ([]sigOp, error) {
	objResult := actionsObjRegexp.FindSubmatch(jsBody)
	funcBody := findActionsFuncBody(jsBody)
	if len(objResult) < 3 || len(funcBody) == 0 {
		return nil, fmt.Errorf("error parsing signature tokens (#obj=%d, #func=%d)", len(objResult), len(funcBody))
	}

	obj := objResult[1]
	objBody := objResult[2]

	var reverseKey, spliceKey, swapKey string
	if result := reverseRegexp.FindSubmatch(objBody); len(result) > 1 {
		reverseKey = string(result[1])
	}
	if result := spliceRegexp.FindSubmatch(objBody); len(result) > 1 {
		spliceKey = string(result[1])
	}
	if result := swapRegexp.FindSubmatch(objBody); len(result) > 1 {
		swapKey = string(result[1])
	}

	regex, err := regexp.Compile(fmt.Sprintf(
		"(?:a=)?%s(?:\\.(%s|%s|%s)|\\[(?:\"(%s|%s|%s)\"|'(%s|%s|%s)')\\])\\(a,(\\d+)\\)",
		regexp.QuoteMeta(string(obj)),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
		regexp.QuoteMeta(reverseKey), regexp.QuoteMeta(spliceKey), regexp.QuoteMeta(swapKey),
	))
	if err != nil {
		return nil, err
	}

	var ops []sigOp
	for _, s := range regex.FindAllSubmatch(funcBody, -1) {
		if len(s) < 5 {
			continue
		}
		key := firstNonEmptySubmatch(s[1], s[2], s[3])
		arg, _ := strconv.Atoi(string(s[4]))
		switch key {
		case reverseKey:
			ops = append(ops, reverseFunc)
		case swapKey:
			ops = append(ops, newSwapFunc(arg))
		case spliceKey:
			ops = append(ops, newSpliceFunc(arg))
		}
	}
	if len(ops) == 0 {
		return nil, errors.New("error parsing signature operations (empty op list)")
	}
	return ops, nil
}

func findActionsFuncBody(jsBody []byte) []byte {
	for _, re := range actionsFuncRegexps {
		if m := re.FindSubmatch(jsBody); len(m) > 1 {
			return m[1]
		}
	}
	return nil
}

func reverseFunc(bs []byte) []byte {
	for i, j := 0, len(bs)-1; i < j; i, j = i+1, j-1 {
		bs[i], bs[j] = bs[j], bs[i]
	}
	return bs
}

func newSwapFunc(arg int) sigOp {
	return func(bs []byte) []byte {
		pos := arg % len(bs)
		bs[0], bs[pos] = bs[pos], bs[0]
		return bs
	}
}

func newSpliceFunc(pos int) sigOp {
	return func(bs []byte) []byte {
		return bs[pos:]
	}
}

func extractNFunction(jsBody []byte) (string, error) {
	for _, re := range nFunctionNameRegexps {
		nameResult := re.FindSubmatch(jsBody)
		if len(nameResult) == 0 {
			continue
		}
		switch len(nameResult) {
		case 5:
			if idx, err := strconv.Atoi(string(nameResult[2])); err == nil && idx == 0 {
				if name := resolveIndirection(jsBody, string(nameResult[1])); name != "" {
					return extractFunction(jsBody, name)
				}
			}
			return extractFunction(jsBody, string(nameResult[4]))
		case 4:
			if idx, err := strconv.Atoi(string(nameResult[2])); err == nil && idx == 0 {
				if name := resolveIndirection(jsBody, string(nameResult[1])); name != "" {
					return extractFunction(jsBody, name)
				}
			}
			return extractFunction(jsBody, string(nameResult[3]))
		default:
			return extractFunction(jsBody, string(nameResult[1]))
		}
	}
	return "", errors.New("unable to extract n-function name")
}

// resolveIndirection follows the common `var c=[realFn]` alias table.
func resolveIndirection(jsBody []byte, alias string) string {
	re, err := regexp.Compile(`var\s+` + regexp.QuoteMeta(alias) + `\s*=\s*\[([a-zA-Z0-9$]+)\]`)
	if err != nil {
		return ""
	}
	if m := re.FindSubmatch(jsBody); len(m) > 1 {
		return string(m[1])
	}
	return ""
}

func extractFunction(jsBody []byte, name string) (string, error) {
	name = strings.TrimSpace(name)
	defPatterns := [][]byte{
		[]byte(name + "=function("),
		[]byte(name + " = function("),
		[]byte("function " + name + "("),
	}
	start := -1
	for _, def := range defPatterns {
		start = bytes.Index(jsBody, def)
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("unable to extract function body for %q", name)
	}

	pos := start + bytes.IndexByte(jsBody[start:], '{') + 1
	var strChar byte
	for brackets := 1; brackets > 0; pos++ {
		if pos >= len(jsBody) {
			return "", errors.New("unterminated function body")
		}
		b := jsBody[pos]
		switch b {
		case '{':
			if strChar == 0 {
				brackets++
			}
		case '}':
			if strChar == 0 {
				brackets--
			}
		case '`', '"', '\'':
			if pos > 1 && jsBody[pos-1] == '\\' && jsBody[pos-2] != '\\' {
				continue
			}
			if strChar == 0 {
				strChar = b
			} else if strChar == b {
				strChar = 0
			}
		}
	}
	src := string(jsBody[start:pos])
	// Normalize `name=function(...)` into a bare function expression.
	if idx := strings.Index(src, "function"); idx > 0 {
		src = src[idx:]
	}
	return src, nil
}

func firstNonEmptySubmatch(groups ...[]byte) string {
	for _, g := range groups {
		if len(g) > 0 {
			return string(g)
		}
	}
	return ""
}

func evalJavascript(jsFunction, arg string) (string, error) {
	const fnName = "ytrelayNFunction"
	vm := goja.New()
	if _, err := vm.RunString(fnName + "=" + jsFunction); err != nil {
		return "", err
	}
	var output func(string) string
	if err := vm.ExportTo(vm.Get(fnName), &output); err != nil {
		return "", err
	}
	return output(arg), nil
}
