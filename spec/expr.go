package spec

// ============================================================================
// EXPRESSION SCANNING — references made by Vega expression strings
// ============================================================================
// Expressions are never evaluated here. The scanner only pulls out:
//   datum.field, datum['field name'], datum["field"]  → field references
//   bare identifiers                                   → parameter references
// while skipping string literals, numbers, member accesses (a.b), function
// calls (f(...)) and the expression language's built-in names.
// ============================================================================

// Refs lists the fields and parameters an expression depends on, in order of
// first appearance.
type Refs struct {
	Fields []string
	Params []string
}

// builtins are names the Vega expression language resolves itself.
var builtins = map[string]bool{
	"datum": true, "event": true, "item": true, "parent": true, "this": true,
	"true": true, "false": true, "null": true, "undefined": true,
	"NaN": true, "Infinity": true, "E": true, "LN2": true, "LN10": true,
	"LOG2E": true, "LOG10E": true, "PI": true, "SQRT1_2": true, "SQRT2": true,
	"MIN_VALUE": true, "MAX_VALUE": true, "in": true, "typeof": true,
}

// ScanExpr extracts the field and parameter references from a Vega expression.
func ScanExpr(expr string) Refs {
	var refs Refs
	seenField := map[string]bool{}
	seenParam := map[string]bool{}
	addField := func(f string) {
		if f != "" && !seenField[f] {
			seenField[f] = true
			refs.Fields = append(refs.Fields, f)
		}
	}
	addParam := func(p string) {
		if !seenParam[p] {
			seenParam[p] = true
			refs.Params = append(refs.Params, p)
		}
	}

	s := []rune(expr)
	n := len(s)
	prev := rune(0) // last significant rune before the current token
	for i := 0; i < n; {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue
		case c == '\'' || c == '"':
			_, i = readString(s, i)
			prev = 'x'
			continue
		case isDigit(c):
			for i < n && (isIdentPart(s[i]) || s[i] == '.') {
				i++
			}
			prev = '0'
			continue
		case isIdentStart(c):
			start := i
			for i < n && isIdentPart(s[i]) {
				i++
			}
			ident := string(s[start:i])
			next := skipSpace(s, i)

			if ident == "datum" && prev != '.' {
				field, end := readDatumField(s, next)
				if end > 0 {
					addField(field)
					i = end
					prev = 'x'
					continue
				}
			}

			isMember := prev == '.'
			isCall := next < n && s[next] == '('
			if !isMember && !isCall && !builtins[ident] {
				addParam(ident)
			}
			prev = 'x'
			continue
		}
		prev = c
		i++
	}
	return refs
}

// readDatumField reads the accessor following "datum" at s[i]. Dotted
// chains (datum.properties.name) yield "properties.name". It returns end 0
// when no accessor follows.
func readDatumField(s []rune, i int) (string, int) {
	n := len(s)
	if i >= n {
		return "", 0
	}
	switch s[i] {
	case '.':
		field := ""
		for i < n && s[i] == '.' {
			j := skipSpace(s, i+1)
			if j >= n || !isIdentStart(s[j]) {
				break
			}
			start := j
			for j < n && isIdentPart(s[j]) {
				j++
			}
			if k := skipSpace(s, j); k < n && s[k] == '(' {
				break // method call: datum.x.toFixed(2) reads x
			}
			if field != "" {
				field += "."
			}
			field += string(s[start:j])
			i = j
		}
		if field == "" {
			return "", 0
		}
		return field, i
	case '[':
		j := skipSpace(s, i+1)
		if j >= n || (s[j] != '\'' && s[j] != '"') {
			return "", 0
		}
		lit, end := readString(s, j)
		end = skipSpace(s, end)
		if end < n && s[end] == ']' {
			end++
		}
		return lit, end
	}
	return "", 0
}

// readString reads a quoted literal starting at s[i] and returns its
// unescaped body and the index just past the closing quote.
func readString(s []rune, i int) (string, int) {
	quote := s[i]
	var out []rune
	i++
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			out = append(out, s[i+1])
			i += 2
			continue
		}
		if c == quote {
			return string(out), i + 1
		}
		out = append(out, c)
		i++
	}
	return string(out), i
}

func skipSpace(s []rune, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
func isIdentStart(c rune) bool { return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c rune) bool { return isIdentStart(c) || isDigit(c) }
