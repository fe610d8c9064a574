package compiler

import (
	"fmt"

	"github.com/corolox/corolox/lang/scanner"
	"github.com/corolox/corolox/lang/token"
)

// Compile tokenizes and compiles src into a top-level FunctionProto (the
// "script" function, arity 0, no upvalues) ready to be wrapped in a
// Closure and run. It returns the accumulated list of compile errors, if
// any; a non-empty error list means the returned proto must not be run
// (spec.md §4.2, §7).
func Compile(src string) (*FunctionProto, []error) {
	c := &Compiler{scanner: scanner.New(src)}
	c.fs = newFuncState(nil, "", 0)
	c.advance()
	for !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.EOF, "expected end of expression")
	fn := c.endFuncState()
	return fn, c.errors
}

// Precedence, lowest to highest (spec.md §4.2).
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < <= > >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[token.Token]parseRule

func init() {
	rules = map[token.Token]parseRule{
		token.LPAREN:    {prefix: (*Compiler).grouping, infix: (*Compiler).call, precedence: precCall},
		token.LBRACK:    {prefix: (*Compiler).listLiteral, infix: (*Compiler).index, precedence: precCall},
		token.LBRACE:    {prefix: (*Compiler).dictLiteral},
		token.DOT:       {infix: (*Compiler).dot, precedence: precCall},
		token.MINUS:     {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: precTerm},
		token.PLUS:      {infix: (*Compiler).binary, precedence: precTerm},
		token.SLASH:     {infix: (*Compiler).binary, precedence: precFactor},
		token.STAR:      {infix: (*Compiler).binary, precedence: precFactor},
		token.BANG:      {prefix: (*Compiler).unary},
		token.BANG_EQ:   {infix: (*Compiler).binary, precedence: precEquality},
		token.EQ_EQ:     {infix: (*Compiler).binary, precedence: precEquality},
		token.GT:        {infix: (*Compiler).binary, precedence: precComparison},
		token.GT_EQ:     {infix: (*Compiler).binary, precedence: precComparison},
		token.LT:        {infix: (*Compiler).binary, precedence: precComparison},
		token.LT_EQ:     {infix: (*Compiler).binary, precedence: precComparison},
		token.IDENT:     {prefix: (*Compiler).variable},
		token.STRING:    {prefix: (*Compiler).stringLit},
		token.NUMBER:    {prefix: (*Compiler).number},
		token.AND:       {infix: (*Compiler).and, precedence: precAnd},
		token.OR:        {infix: (*Compiler).or, precedence: precOr},
		token.FALSE:     {prefix: (*Compiler).literal},
		token.TRUE:      {prefix: (*Compiler).literal},
		token.NIL:       {prefix: (*Compiler).literal},
		token.FUN:       {prefix: (*Compiler).funExpr},
		token.COROUTINE: {prefix: (*Compiler).coroutineExpr},
		token.YIELD:     {prefix: (*Compiler).yieldExpr},
		token.AWAIT:     {prefix: (*Compiler).awaitExpr},
	}
}

func (c *Compiler) rule(t token.Token) parseRule { return rules[t] }

// local is a compile-time record of one slot in the current function's
// locals array.
type local struct {
	name       string
	depth      int // -1 while the initializer is being compiled (spec.md §4.2.1)
	isCaptured bool
}

// funcState holds everything the compiler needs while compiling one
// function body; entering a nested function body pushes a new funcState
// and leaving pops it (spec.md §4.2: "maintains a stack of CompilerState
// frames"). Grounded on the split between nenuphar's pcomp (program-wide)
// and fcomp (per-function) compiler state, collapsed here into one struct
// per function since corolox has no separate program-level pass.
type funcState struct {
	enclosing *funcState
	fn        *FunctionProto
	chunk     *Chunk

	locals     []local
	scopeDepth int
	loops      []loopCtx
}

type loopCtx struct {
	continueTarget int
	breakJumps     []int
	// scopeDepth is the compiler's scope depth at the point the loop was
	// entered, i.e. the depth a break/continue jump lands at. break/continue
	// must pop any locals declared in scopes nested inside the loop body
	// before jumping, the same way endScope does for a normal fall-through
	// exit, or the runtime stack ends up with stale slots under the jump
	// target and subsequent OP_GET_LOCAL/OP_SET_LOCAL address the wrong slot.
	scopeDepth int
}

func newFuncState(enclosing *funcState, name string, arity int) *funcState {
	chunk := &Chunk{}
	fs := &funcState{
		enclosing: enclosing,
		fn:        &FunctionProto{Name: name, Arity: arity, Chunk: chunk},
		chunk:     chunk,
	}
	// Slot 0 of every frame is reserved for the callee itself (spec.md §4.4).
	fs.locals = append(fs.locals, local{name: "", depth: 0})
	return fs
}

// Compiler is the single-pass Pratt parser: it consumes tokens from the
// scanner and emits bytecode into the chunk of the currently-compiling
// function (spec.md §4.2).
type Compiler struct {
	scanner *scanner.Scanner
	current scanner.Token
	prev    scanner.Token

	fs *funcState

	hadError  bool
	panicMode bool
	errors    []error
}

func (c *Compiler) line() int { return c.prev.Line }

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.scanner.Next()
		if c.current.Type != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Lexeme)
	}
}

func (c *Compiler) check(t token.Token) bool { return c.current.Type == t }

func (c *Compiler) match(t token.Token) bool {
	if !c.check(t) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(t token.Token, msg string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(tok scanner.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true

	where := tok.Lexeme
	if tok.Type == token.EOF {
		where = "end"
	}
	c.errors = append(c.errors, fmt.Errorf("[line %d] Error at '%s': %s", tok.Line, where, msg))
}

// synchronize discards tokens until a likely statement boundary, so that a
// single syntax error does not cascade into spurious follow-on errors
// (spec.md §4.2, §7).
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Type != token.EOF {
		if c.prev.Type == token.SEMICOLON {
			return
		}
		switch c.current.Type {
		case token.FUN, token.VAR, token.FOR, token.IF, token.WHILE, token.RETURN:
			return
		}
		c.advance()
	}
}

func (c *Compiler) emitByte(b byte) { c.fs.chunk.writeByte(b, c.line()) }
func (c *Compiler) emitOp(op Opcode) { c.fs.chunk.writeOp(op, c.line()) }

func (c *Compiler) emitConstant(v any) {
	idx := c.fs.chunk.addConstant(v)
	c.fs.chunk.writeIndexed(OP_CONSTANT, OP_CONSTANT_LONG, idx, c.line())
}

func (c *Compiler) endFuncState() *FunctionProto {
	c.emitOp(OP_NIL)
	c.emitOp(OP_RETURN)
	fn := c.fs.fn
	fn.Chunk.MaxStack = estimateMaxStack(fn.Chunk.Code)
	c.fs = c.fs.enclosing
	return fn
}

// estimateMaxStack is a conservative upper bound on operand-stack depth,
// sized generously since corolox (unlike nenuphar's CFG-based compiler)
// does not linearize a control-flow graph to compute an exact watermark.
func estimateMaxStack(code []byte) int {
	// A generous, always-safe bound: one slot per instruction byte can
	// never be exceeded since every instruction pushes at most one value.
	n := len(code) + 16
	if n < 64 {
		n = 64
	}
	return n
}

// --- declarations & statements ---

func (c *Compiler) declaration() {
	switch {
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) funDeclaration() {
	global, name := c.parseVariable("expected function name")
	c.markInitialized()
	c.function(name)
	c.defineVariable(global, name)
}

func (c *Compiler) function(name string) {
	c.fs = newFuncState(c.fs, name, 0)
	c.beginScope()

	c.consume(token.LPAREN, "expected '(' after function name")
	if !c.check(token.RPAREN) {
		for {
			c.fs.fn.Arity++
			if c.fs.fn.Arity > 255 {
				c.error("can't have more than 255 parameters")
			}
			_, pname := c.parseVariable("expected parameter name")
			c.defineVariable(0, pname)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expected ')' after parameters")
	c.consume(token.LBRACE, "expected '{' before function body")
	c.block()

	enclosing := c.fs.enclosing
	fn := c.endFuncStateForClosure()
	c.emitClosure(enclosing, fn)
}

// endFuncStateForClosure is like endFuncState; the returned proto carries
// its captured upvalue specs (fn.Upvalues) for the enclosing compiler to
// encode.
func (c *Compiler) endFuncStateForClosure() *FunctionProto {
	return c.endFuncState()
}

// emitClosure emits OP_CLOSURE (or its _LONG form) into the now-current
// (enclosing) function's chunk, followed by one (is_local, index) pair per
// captured upvalue (spec.md §4.2). By the time this is called, c.fs has
// already been restored to enclosing by endFuncState.
func (c *Compiler) emitClosure(enclosing *funcState, fn *FunctionProto) {
	idx := c.fs.chunk.addConstant(fn)
	c.fs.chunk.writeIndexed(OP_CLOSURE, OP_CLOSURE_LONG, idx, c.line())
	for _, uv := range fn.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		c.emitByte(isLocal)
		c.emitByte(uv.Index)
	}
}

func (c *Compiler) varDeclaration() {
	global, name := c.parseVariable("expected variable name")
	if c.match(token.EQ) {
		c.expression()
	} else {
		c.emitOp(OP_NIL)
	}
	c.consume(token.SEMICOLON, "expected ';' after variable declaration")
	c.defineVariable(global, name)
}

// parseVariable consumes an identifier and, for a local, declares it
// immediately (without initializing it); for a global it interns the name
// as a constant and returns its index. The caller must still call
// defineVariable once the initializer has been compiled.
func (c *Compiler) parseVariable(errMsg string) (int, string) {
	c.consume(token.IDENT, errMsg)
	name := c.prev.Lexeme

	if c.fs.scopeDepth > 0 {
		c.declareLocal(name)
		return 0, name
	}
	return c.identifierConstant(name), name
}

func (c *Compiler) identifierConstant(name string) int {
	return c.fs.chunk.addConstant(name)
}

func (c *Compiler) declareLocal(name string) {
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		// Shadowing within the same scope is permitted (spec.md §9 Open
		// Question, resolved in favor of shadowing): re-declaring the same
		// name in this scope simply adds a new, later slot that will be
		// found first by resolveLocal's top-down search.
	}
	if len(c.fs.locals) >= 1<<24 {
		c.error("too many local variables in function")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

func (c *Compiler) defineVariable(global int, name string) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.fs.chunk.writeIndexed(OP_DEFINE_GLOBAL, OP_DEFINE_GLOBAL_LONG, global, c.line())
	_ = name
}

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		last := c.fs.locals[len(c.fs.locals)-1]
		if last.isCaptured {
			c.emitOp(OP_CLOSE_UPVALUE)
		} else {
			c.emitOp(OP_POP)
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

// emitPopLocalsAbove emits the same per-local OP_POP/OP_CLOSE_UPVALUE
// sequence endScope would for every local declared deeper than depth,
// without discarding them from c.fs.locals: a break/continue jump leaves
// those scopes compile-time open (the enclosing block still closes them
// normally once control falls out of the loop body), it only needs the
// runtime stack to look as if they had already been popped.
func (c *Compiler) emitPopLocalsAbove(depth int) {
	for i := len(c.fs.locals) - 1; i >= 0 && c.fs.locals[i].depth > depth; i-- {
		if c.fs.locals[i].isCaptured {
			c.emitOp(OP_CLOSE_UPVALUE)
		} else {
			c.emitOp(OP_POP)
		}
	}
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "expected '}' after block")
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "expected ';' after expression")
	c.emitOp(OP_POP)
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "expected '(' after 'if'")
	c.expression()
	c.consume(token.RPAREN, "expected ')' after condition")

	thenJump := c.fs.chunk.writeJump(OP_JUMP_IF_FALSE, c.line())
	c.emitOp(OP_POP)
	c.statement()

	elseJump := c.fs.chunk.writeJump(OP_JUMP, c.line())
	c.fs.chunk.patchJump(thenJump)
	c.emitOp(OP_POP)

	if c.match(token.ELSE) {
		c.statement()
	}
	c.fs.chunk.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.fs.chunk.Code)
	c.fs.loops = append(c.fs.loops, loopCtx{continueTarget: loopStart, scopeDepth: c.fs.scopeDepth})

	c.consume(token.LPAREN, "expected '(' after 'while'")
	c.expression()
	c.consume(token.RPAREN, "expected ')' after condition")

	exitJump := c.fs.chunk.writeJump(OP_JUMP_IF_FALSE, c.line())
	c.emitOp(OP_POP)
	c.statement()
	c.fs.chunk.writeLoop(loopStart, c.line())

	c.fs.chunk.patchJump(exitJump)
	c.emitOp(OP_POP)

	c.endLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "expected '(' after 'for'")

	switch {
	case c.match(token.SEMICOLON):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.fs.chunk.Code)
	c.fs.loops = append(c.fs.loops, loopCtx{continueTarget: loopStart, scopeDepth: c.fs.scopeDepth})

	exitJump := -1
	if !c.check(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "expected ';' after loop condition")
		exitJump = c.fs.chunk.writeJump(OP_JUMP_IF_FALSE, c.line())
		c.emitOp(OP_POP)
	} else {
		c.advance() // consume the ';'
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.fs.chunk.writeJump(OP_JUMP, c.line())
		incrementStart := len(c.fs.chunk.Code)
		c.expression()
		c.emitOp(OP_POP)
		c.consume(token.RPAREN, "expected ')' after for clauses")

		c.fs.chunk.writeLoop(loopStart, c.line())
		loopStart = incrementStart
		c.fs.loops[len(c.fs.loops)-1].continueTarget = incrementStart
		c.fs.chunk.patchJump(bodyJump)
	} else {
		c.advance() // consume the ')'
	}

	c.statement()
	c.fs.chunk.writeLoop(loopStart, c.line())

	if exitJump != -1 {
		c.fs.chunk.patchJump(exitJump)
		c.emitOp(OP_POP)
	}

	c.endLoop()
	c.endScope()
}

func (c *Compiler) endLoop() {
	loop := c.fs.loops[len(c.fs.loops)-1]
	for _, j := range loop.breakJumps {
		c.fs.chunk.patchJump(j)
	}
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) breakStatement() {
	if len(c.fs.loops) == 0 {
		c.error("'break' outside of a loop")
		c.consume(token.SEMICOLON, "expected ';' after 'break'")
		return
	}
	c.consume(token.SEMICOLON, "expected ';' after 'break'")
	loop := &c.fs.loops[len(c.fs.loops)-1]
	c.emitPopLocalsAbove(loop.scopeDepth)
	j := c.fs.chunk.writeJump(OP_JUMP, c.line())
	loop.breakJumps = append(loop.breakJumps, j)
}

func (c *Compiler) continueStatement() {
	if len(c.fs.loops) == 0 {
		c.error("'continue' outside of a loop")
		c.consume(token.SEMICOLON, "expected ';' after 'continue'")
		return
	}
	c.consume(token.SEMICOLON, "expected ';' after 'continue'")
	loop := c.fs.loops[len(c.fs.loops)-1]
	c.emitPopLocalsAbove(loop.scopeDepth)
	c.fs.chunk.writeLoop(loop.continueTarget, c.line())
}

func (c *Compiler) returnStatement() {
	if c.match(token.SEMICOLON) {
		c.emitOp(OP_NIL)
		c.emitOp(OP_RETURN)
		return
	}
	c.expression()
	c.consume(token.SEMICOLON, "expected ';' after return value")
	c.emitOp(OP_RETURN)
}

// --- expressions ---

func (c *Compiler) expression() { c.parsePrecedence(precAssignment) }

func (c *Compiler) parsePrecedence(p precedence) {
	c.advance()
	prefix := c.rule(c.prev.Type).prefix
	if prefix == nil {
		c.error("expected expression")
		return
	}
	canAssign := p <= precAssignment
	prefix(c, canAssign)

	for p <= c.rule(c.current.Type).precedence {
		c.advance()
		infix := c.rule(c.prev.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQ) {
		c.error("invalid assignment target")
	}
}

func (c *Compiler) number(canAssign bool) {
	var f float64
	fmt.Sscanf(c.prev.Lexeme, "%g", &f)
	c.emitConstant(f)
}

func (c *Compiler) stringLit(canAssign bool) {
	// Lexeme includes the surrounding quotes (spec.md §4.1).
	raw := c.prev.Lexeme[1 : len(c.prev.Lexeme)-1]
	c.emitConstant(unescape(raw))
}

func unescape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '"':
				out = append(out, '"')
			case '\\':
				out = append(out, '\\')
			default:
				out = append(out, '\\', s[i])
			}
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (c *Compiler) literal(canAssign bool) {
	switch c.prev.Type {
	case token.FALSE:
		c.emitOp(OP_FALSE)
	case token.TRUE:
		c.emitOp(OP_TRUE)
	case token.NIL:
		c.emitOp(OP_NIL)
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(token.RPAREN, "expected ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.prev.Type
	line := c.line()
	c.parsePrecedence(precUnary)
	switch op {
	case token.MINUS:
		c.fs.chunk.writeOp(OP_NEGATE, line)
	case token.BANG:
		c.fs.chunk.writeOp(OP_NOT, line)
	}
}

// coroutineExpr compiles `coroutine <expr>`: the operand must evaluate to
// a closure, which OP_COROUTINE wraps into a fresh, not-yet-started
// coroutine value (spec.md §4.3's COROUTINE opcode).
func (c *Compiler) coroutineExpr(canAssign bool) {
	line := c.line()
	c.parsePrecedence(precUnary)
	c.fs.chunk.writeOp(OP_COROUTINE, line)
}

// yieldExpr compiles `yield <expr>`: suspends the running coroutine,
// handing expr's value to whatever resumes it, and itself evaluates to
// the argument passed to the next resume (spec.md §4.4's suspension
// points).
func (c *Compiler) yieldExpr(canAssign bool) {
	line := c.line()
	c.parsePrecedence(precUnary)
	c.fs.chunk.writeOp(OP_YIELD, line)
}

// awaitExpr compiles `await <expr>`. OP_AWAIT is reserved (spec.md §9's
// open question on async integration); the interpreter decodes it into a
// runtime error rather than the compiler rejecting it outright, so a
// program can still be compiled and partially run up to the await.
func (c *Compiler) awaitExpr(canAssign bool) {
	line := c.line()
	c.parsePrecedence(precUnary)
	c.fs.chunk.writeOp(OP_AWAIT, line)
}

func (c *Compiler) binary(canAssign bool) {
	op := c.prev.Type
	line := c.line()
	rule := c.rule(op)
	c.parsePrecedence(rule.precedence + 1)

	switch op {
	case token.PLUS:
		c.fs.chunk.writeOp(OP_ADD, line)
	case token.MINUS:
		c.fs.chunk.writeOp(OP_SUBTRACT, line)
	case token.STAR:
		c.fs.chunk.writeOp(OP_MULTIPLY, line)
	case token.SLASH:
		c.fs.chunk.writeOp(OP_DIVIDE, line)
	case token.EQ_EQ:
		c.fs.chunk.writeOp(OP_EQUAL, line)
	case token.BANG_EQ:
		c.fs.chunk.writeOp(OP_EQUAL, line)
		c.fs.chunk.writeOp(OP_NOT, line)
	case token.GT:
		c.fs.chunk.writeOp(OP_GREATER, line)
	case token.GT_EQ:
		c.fs.chunk.writeOp(OP_LESS, line)
		c.fs.chunk.writeOp(OP_NOT, line)
	case token.LT:
		c.fs.chunk.writeOp(OP_LESS, line)
	case token.LT_EQ:
		c.fs.chunk.writeOp(OP_GREATER, line)
		c.fs.chunk.writeOp(OP_NOT, line)
	}
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.fs.chunk.writeJump(OP_JUMP_IF_FALSE, c.line())
	c.emitOp(OP_POP)
	c.parsePrecedence(precAnd)
	c.fs.chunk.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.fs.chunk.writeJump(OP_JUMP_IF_FALSE, c.line())
	endJump := c.fs.chunk.writeJump(OP_JUMP, c.line())
	c.fs.chunk.patchJump(elseJump)
	c.emitOp(OP_POP)
	c.parsePrecedence(precOr)
	c.fs.chunk.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argc := c.argumentList()
	c.emitOp(OP_CALL)
	c.emitByte(byte(argc))
}

func (c *Compiler) argumentList() int {
	argc := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if argc == 255 {
				c.error("can't have more than 255 arguments")
			}
			argc++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expected ')' after arguments")
	return argc
}

func (c *Compiler) index(canAssign bool) {
	c.expression()
	c.consume(token.RBRACK, "expected ']' after index")
	if canAssign && c.match(token.EQ) {
		c.expression()
		c.emitOp(OP_SET_FIELD)
	} else {
		c.emitOp(OP_GET_FIELD)
	}
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.IDENT, "expected property name after '.'")
	c.emitConstant(c.prev.Lexeme)
	if canAssign && c.match(token.EQ) {
		c.expression()
		c.emitOp(OP_SET_FIELD)
	} else {
		c.emitOp(OP_GET_FIELD)
	}
}

func (c *Compiler) listLiteral(canAssign bool) {
	n := 0
	if !c.check(token.RBRACK) {
		for {
			c.expression()
			n++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACK, "expected ']' after list elements")
	c.fs.chunk.writeIndexed(OP_LIST, OP_LIST_LONG, n, c.line())
}

func (c *Compiler) dictLiteral(canAssign bool) {
	n := 0
	if !c.check(token.RBRACE) {
		for {
			c.expression()
			c.consume(token.COLON, "expected ':' after dict key")
			c.expression()
			n++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACE, "expected '}' after dict entries")
	c.fs.chunk.writeIndexed(OP_DICT, OP_DICT_LONG, n, c.line())
}

func (c *Compiler) funExpr(canAssign bool) {
	c.function("")
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.prev.Lexeme, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, getLongOp, setOp, setLongOp Opcode
	idx, kind := c.resolveName(c.fs, name)

	switch kind {
	case scopeLocal:
		getOp, getLongOp = OP_GET_LOCAL, OP_GET_LOCAL_LONG
		setOp, setLongOp = OP_SET_LOCAL, OP_SET_LOCAL_LONG
	case scopeUpvalue:
		if canAssign && c.match(token.EQ) {
			c.expression()
			c.emitOp(OP_SET_UPVALUE)
			c.emitByte(byte(idx))
			return
		}
		c.emitOp(OP_GET_UPVALUE)
		c.emitByte(byte(idx))
		return
	default: // scopeGlobal
		idx = c.identifierConstant(name)
		getOp, getLongOp = OP_GET_GLOBAL, OP_GET_GLOBAL_LONG
		setOp, setLongOp = OP_SET_GLOBAL, OP_SET_GLOBAL_LONG
	}

	if canAssign && c.match(token.EQ) {
		c.expression()
		c.fs.chunk.writeIndexed(setOp, setLongOp, idx, c.line())
		return
	}
	c.fs.chunk.writeIndexed(getOp, getLongOp, idx, c.line())
}

type nameScope int

const (
	scopeGlobal nameScope = iota
	scopeLocal
	scopeUpvalue
)

// resolveName implements spec.md §4.2's layered resolution: locals in the
// current function, then upvalues via the enclosing compiler chain, then
// globals.
func (c *Compiler) resolveName(fs *funcState, name string) (int, nameScope) {
	if idx := resolveLocal(fs, name); idx != -1 {
		return idx, scopeLocal
	}
	if idx := c.resolveUpvalue(fs, name); idx != -1 {
		return idx, scopeUpvalue
	}
	return -1, scopeGlobal
}

func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.name == name {
			if l.depth == -1 {
				// declared but not yet initialized: skip it so the initializer
				// of "var x = x;" captures the outer x (spec.md §4.2.1).
				continue
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue recursively searches enclosing functions for name. A
// match in an enclosing function's locals or upvalues is recorded as a new
// UpvalueSpec on fs (deduplicated), returning its index.
func (c *Compiler) resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if idx := resolveLocal(fs.enclosing, name); idx != -1 {
		fs.enclosing.locals[idx].isCaptured = true
		return addUpvalue(fs, uint8(idx), true)
	}
	if idx := c.resolveUpvalue(fs.enclosing, name); idx != -1 {
		return addUpvalue(fs, uint8(idx), false)
	}
	return -1
}

func addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	for i, uv := range fs.fn.Upvalues {
		if uv.Index == index && uv.IsLocal == isLocal {
			return i
		}
	}
	fs.fn.Upvalues = append(fs.fn.Upvalues, UpvalueSpec{IsLocal: isLocal, Index: index})
	fs.fn.UpvalueCount = len(fs.fn.Upvalues)
	return len(fs.fn.Upvalues) - 1
}
