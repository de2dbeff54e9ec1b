package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// when 条件表达式，加载时编译一次，逐帧求值。
// 语法：比较（== != > < >= <=）、and/or、括号分组。
// 比较的操作数为字段名或数字字面量。

var (
	ErrExprSyntax  = errors.New("when expression syntax error")
	ErrUnboundName = errors.New("name not in scope")
)

// LookupFunc 表达式求值时解析字段名的回调
type LookupFunc func(name string) (any, bool)

type exprOp int

const (
	opEq exprOp = iota
	opNe
	opGt
	opLt
	opGe
	opLe
	opAnd
	opOr
)

// Expr 已编译的条件表达式节点
type Expr struct {
	op exprOp
	// 逻辑节点
	left  *Expr
	right *Expr
	// 比较节点
	lhs operand
	rhs operand
}

type operand struct {
	ident string // 非空时按名查找
	num   float64
}

// Eval 在给定作用域下求值。引用的名字不在作用域时返回 ErrUnboundName。
func (e *Expr) Eval(lookup LookupFunc) (bool, error) {
	switch e.op {
	case opAnd:
		l, err := e.left.Eval(lookup)
		if err != nil {
			return false, err
		}
		if !l {
			return false, nil
		}
		return e.right.Eval(lookup)
	case opOr:
		l, err := e.left.Eval(lookup)
		if err != nil {
			return false, err
		}
		if l {
			return true, nil
		}
		return e.right.Eval(lookup)
	}

	lv, err := e.lhs.value(lookup)
	if err != nil {
		return false, err
	}
	rv, err := e.rhs.value(lookup)
	if err != nil {
		return false, err
	}
	switch e.op {
	case opEq:
		return lv == rv, nil
	case opNe:
		return lv != rv, nil
	case opGt:
		return lv > rv, nil
	case opLt:
		return lv < rv, nil
	case opGe:
		return lv >= rv, nil
	case opLe:
		return lv <= rv, nil
	}
	return false, fmt.Errorf("%w: bad operator", ErrExprSyntax)
}

// Refs 返回表达式引用的全部字段名（去重，供加载期校验）
func (e *Expr) Refs() []string {
	seen := make(map[string]struct{})
	var walk func(*Expr)
	walk = func(n *Expr) {
		if n == nil {
			return
		}
		if n.op == opAnd || n.op == opOr {
			walk(n.left)
			walk(n.right)
			return
		}
		for _, o := range []operand{n.lhs, n.rhs} {
			if o.ident != "" {
				seen[o.ident] = struct{}{}
			}
		}
	}
	walk(e)
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	return refs
}

func (o operand) value(lookup LookupFunc) (float64, error) {
	if o.ident == "" {
		return o.num, nil
	}
	v, ok := lookup(o.ident)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnboundName, o.ident)
	}
	f, ok := NumericValue(v)
	if !ok {
		return 0, fmt.Errorf("field %q is not numeric", o.ident)
	}
	return f, nil
}

// NumericValue 将解码值归一为 float64 做比较
func NumericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	// 枚举等组合值实现 Raw() 暴露原始整数
	if r, ok := v.(interface{ Raw() int64 }); ok {
		return float64(r.Raw()), true
	}
	// 带单位的数值实现 Float64()
	if f, ok := v.(interface{ Float64() float64 }); ok {
		return f.Float64(), true
	}
	return 0, false
}

// CompileExpr 编译 when 表达式字符串
func CompileExpr(src string) (*Expr, error) {
	toks, err := lexExpr(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("%w: trailing input %q", ErrExprSyntax, p.toks[p.pos].text)
	}
	return e, nil
}

type exprToken struct {
	kind string // ident num op lparen rparen and or
	text string
	num  float64
}

func lexExpr(src string) ([]exprToken, error) {
	var toks []exprToken
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, exprToken{kind: "lparen", text: "("})
			i++
		case c == ')':
			toks = append(toks, exprToken{kind: "rparen", text: ")"})
			i++
		case c == '=' || c == '!' || c == '>' || c == '<':
			op := string(c)
			if i+1 < len(src) && src[i+1] == '=' {
				op += "="
				i++
			}
			i++
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("%w: bad operator %q", ErrExprSyntax, op)
			}
			toks = append(toks, exprToken{kind: "op", text: op})
		case c >= '0' && c <= '9' || c == '-' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			j := i + 1
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.' || src[j] == 'x' ||
				src[j] >= 'a' && src[j] <= 'f' || src[j] >= 'A' && src[j] <= 'F') {
				j++
			}
			text := src[i:j]
			var num float64
			if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
				u, err := strconv.ParseUint(text[2:], 16, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad number %q", ErrExprSyntax, text)
				}
				num = float64(u)
			} else {
				f, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: bad number %q", ErrExprSyntax, text)
				}
				num = f
			}
			toks = append(toks, exprToken{kind: "num", text: text, num: num})
			i = j
		case c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80:
			// 字段名常含中文，非 ASCII 字节一律归入标识符
			j := i + 1
			for j < len(src) && (src[j] == '_' || src[j] >= 'a' && src[j] <= 'z' ||
				src[j] >= 'A' && src[j] <= 'Z' || src[j] >= '0' && src[j] <= '9' || src[j] >= 0x80) {
				j++
			}
			word := src[i:j]
			switch word {
			case "and":
				toks = append(toks, exprToken{kind: "and", text: word})
			case "or":
				toks = append(toks, exprToken{kind: "or", text: word})
			default:
				toks = append(toks, exprToken{kind: "ident", text: word})
			}
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrExprSyntax, string(c))
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrExprSyntax)
	}
	return toks, nil
}

type exprParser struct {
	toks []exprToken
	pos  int
}

func (p *exprParser) peek() *exprToken {
	if p.pos >= len(p.toks) {
		return nil
	}
	return &p.toks[p.pos]
}

func (p *exprParser) parseOr() (*Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t != nil && t.kind == "or"; t = p.peek() {
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Expr{op: opOr, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (*Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t != nil && t.kind == "and"; t = p.peek() {
		p.pos++
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		left = &Expr{op: opAnd, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parsePrimary() (*Expr, error) {
	t := p.peek()
	if t == nil {
		return nil, fmt.Errorf("%w: unexpected end", ErrExprSyntax)
	}
	if t.kind == "lparen" {
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if c := p.peek(); c == nil || c.kind != "rparen" {
			return nil, fmt.Errorf("%w: missing )", ErrExprSyntax)
		}
		p.pos++
		return e, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (*Expr, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t == nil || t.kind != "op" {
		return nil, fmt.Errorf("%w: expected comparison operator", ErrExprSyntax)
	}
	p.pos++
	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	var op exprOp
	switch t.text {
	case "==":
		op = opEq
	case "!=":
		op = opNe
	case ">":
		op = opGt
	case "<":
		op = opLt
	case ">=":
		op = opGe
	case "<=":
		op = opLe
	default:
		return nil, fmt.Errorf("%w: bad operator %q", ErrExprSyntax, t.text)
	}
	return &Expr{op: op, lhs: lhs, rhs: rhs}, nil
}

func (p *exprParser) parseOperand() (operand, error) {
	t := p.peek()
	if t == nil {
		return operand{}, fmt.Errorf("%w: expected operand", ErrExprSyntax)
	}
	switch t.kind {
	case "ident":
		p.pos++
		return operand{ident: t.text}, nil
	case "num":
		p.pos++
		return operand{num: t.num}, nil
	}
	return operand{}, fmt.Errorf("%w: unexpected token %q", ErrExprSyntax, t.text)
}
