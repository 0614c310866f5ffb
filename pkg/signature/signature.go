// Package signature parses a human-readable Solidity event declaration,
// e.g. `event Transfer(address indexed from, address indexed to, uint256
// value)`, into a descriptor.Event.
//
// The actual type-tree construction and selector computation is left to
// go-ethereum's accounts/abi package (abi.NewType / abi.NewEvent): this
// package's only job is tokenizing the human declaration into the
// abi.ArgumentMarshaling trees that abi.NewType already knows how to turn
// into the recursive type tree spec.md calls the "event descriptor".
package signature

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

// Parse parses a human-readable event declaration into a descriptor.Event.
func Parse(declaration string) (*descriptor.Event, error) {
	name, params, err := splitDeclaration(declaration)
	if err != nil {
		return nil, fmt.Errorf("parsing event declaration %q: %s", declaration, err)
	}

	fields, err := splitTopLevel(params)
	if err != nil {
		return nil, fmt.Errorf("parsing event declaration %q: %s", declaration, err)
	}

	args := make(abi.Arguments, 0, len(fields))
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		arg, err := parseField(field)
		if err != nil {
			return nil, fmt.Errorf("parsing field %d of event declaration %q: %s", i, declaration, err)
		}
		args = append(args, arg)
	}

	abiEvent := abi.NewEvent(name, name, false, args)
	return descriptor.New(abiEvent)
}

// splitDeclaration strips an optional leading "event" keyword and splits
// "Name(params)" into its name and raw parameter-list text.
func splitDeclaration(declaration string) (name string, params string, err error) {
	decl := strings.TrimSpace(declaration)
	decl = strings.TrimPrefix(decl, "event ")
	decl = strings.TrimSpace(decl)

	open := strings.IndexByte(decl, '(')
	if open < 0 || !strings.HasSuffix(decl, ")") {
		return "", "", fmt.Errorf("expected \"Name(params)\"")
	}
	name = strings.TrimSpace(decl[:open])
	if name == "" {
		return "", "", fmt.Errorf("missing event name")
	}
	params = decl[open+1 : len(decl)-1]
	return name, params, nil
}

// splitTopLevel splits a comma-separated parameter list, respecting
// nested parentheses so that tuple components' internal commas are not
// mistaken for top-level separators.
func splitTopLevel(params string) ([]string, error) {
	var fields []string
	depth := 0
	start := 0
	for i, r := range params {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses")
			}
		case ',':
			if depth == 0 {
				fields = append(fields, params[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses")
	}
	fields = append(fields, params[start:])
	return fields, nil
}

// parseField parses a single "type [indexed] [name]" parameter, possibly
// followed by trailing array-bracket suffixes (e.g. "uint256[3][]"), and a
// tuple type written as "(components...)".
func parseField(field string) (abi.Argument, error) {
	field = strings.TrimSpace(field)

	var components []abi.ArgumentMarshaling
	var rest string
	if strings.HasPrefix(field, "(") {
		close, err := matchParen(field)
		if err != nil {
			return abi.Argument{}, err
		}
		inner, err := splitTopLevel(field[1:close])
		if err != nil {
			return abi.Argument{}, err
		}
		for i, c := range inner {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			comp, err := parseComponent(c)
			if err != nil {
				return abi.Argument{}, fmt.Errorf("tuple component %d: %s", i, err)
			}
			components = append(components, comp)
		}
		rest = strings.TrimSpace(field[close+1:])
	} else {
		rest = field
	}

	typeTok, arraySuffix, tail := splitTypeToken(rest, len(components) > 0)
	if len(components) > 0 {
		typeTok = "tuple"
	}

	indexed := false
	tailFields := strings.Fields(tail)
	var nameFields []string
	for _, tf := range tailFields {
		if tf == "indexed" {
			indexed = true
			continue
		}
		nameFields = append(nameFields, tf)
	}
	if len(nameFields) > 1 {
		return abi.Argument{}, fmt.Errorf("unexpected tokens %v", nameFields[1:])
	}
	name := ""
	if len(nameFields) == 1 {
		name = nameFields[0]
	}

	typeStr := typeTok + arraySuffix
	t, err := abi.NewType(typeStr, "", components)
	if err != nil {
		return abi.Argument{}, fmt.Errorf("invalid type %q: %s", typeStr, err)
	}

	return abi.Argument{Name: name, Type: t, Indexed: indexed}, nil
}

// parseComponent parses one tuple-field declaration ("type name" or a
// nested tuple) into an abi.ArgumentMarshaling, recursing through
// parseField + abi.Argument to avoid re-implementing nested-tuple parsing.
func parseComponent(field string) (abi.ArgumentMarshaling, error) {
	arg, err := parseField(field)
	if err != nil {
		return abi.ArgumentMarshaling{}, err
	}
	return toMarshaling(arg.Name, arg.Type), nil
}

// toMarshaling converts an already-parsed abi.Type back into the
// abi.ArgumentMarshaling shape abi.NewType expects for tuple components,
// since abi.NewType does not accept a pre-built abi.Type for a component.
func toMarshaling(name string, t abi.Type) abi.ArgumentMarshaling {
	m := abi.ArgumentMarshaling{Name: name, Type: t.String()}
	if t.T == abi.TupleTy {
		m.Type = "tuple" + arraySuffixOf(t.String())
		for i, elem := range t.TupleElems {
			m.Components = append(m.Components, toMarshaling(t.TupleRawNames[i], *elem))
		}
	}
	return m
}

// arraySuffixOf extracts the trailing "[n]"/"[]" run from a type string,
// e.g. "tuple[2][]" -> "[2][]".
func arraySuffixOf(typeStr string) string {
	if j := strings.LastIndexByte(typeStr, ')'); j >= 0 {
		typeStr = typeStr[j+1:]
	}
	i := strings.IndexByte(typeStr, '[')
	if i < 0 {
		return ""
	}
	return typeStr[i:]
}

// matchParen finds the index of the ')' matching the '(' at field[0].
func matchParen(field string) (int, error) {
	depth := 0
	for i, r := range field {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitTypeToken splits "uint256[3] indexed name" into its elementary
// type token ("uint256"), its array-bracket suffix ("[3]"), and the
// remaining tail ("indexed name"). When isTuple is true the elementary
// type token has already been consumed by the caller (it is a tuple
// written as parenthesized components) and only the suffix/tail remain.
func splitTypeToken(s string, isTuple bool) (typeTok, arraySuffix, tail string) {
	s = strings.TrimSpace(s)
	if isTuple {
		i := 0
		for i < len(s) && (s[i] == '[' || isDigit(s[i]) || s[i] == ']') {
			i++
		}
		return "", s[:i], strings.TrimSpace(s[i:])
	}

	i := 0
	for i < len(s) && !isSpace(s[i]) && s[i] != '[' {
		i++
	}
	typeTok = s[:i]
	j := i
	for j < len(s) && (s[j] == '[' || isDigit(s[j]) || s[j] == ']') {
		j++
	}
	arraySuffix = s[i:j]
	tail = strings.TrimSpace(s[j:])
	return typeTok, arraySuffix, tail
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }
