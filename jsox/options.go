package jsox

// Reviver transforms parsed values bottom-up, as JSON.parse does. Array keys
// are decimal indices and the root key is "". Returning nil deletes an object
// member or turns an array slot into undefined.
type Reviver func(key string, v *Value) *Value

// ParseOptions configures a Parser.
type ParseOptions struct {
	// MaxDepth limits nesting depth (default: 512)
	MaxDepth int

	// StackCapacity is the initial size of the context arena (default: 16)
	StackCapacity int

	// Reviver is applied to every completed top-level value.
	Reviver Reviver

	// Registry supplies decoders. The parser clones it, so instance-local
	// registrations never leak back (default: a clone of the global registry).
	Registry *Registry
}

// DefaultParseOptions returns sensible defaults.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		MaxDepth:      512,
		StackCapacity: 16,
	}
}

func (o *ParseOptions) normalize() {
	def := DefaultParseOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.StackCapacity <= 0 {
		o.StackCapacity = def.StackCapacity
	}
}

// ParseOption configures a Parser.
type ParseOption func(*ParseOptions)

// WithReviver sets the reviver.
func WithReviver(fn Reviver) ParseOption {
	return func(o *ParseOptions) {
		o.Reviver = fn
	}
}

// WithMaxDepth sets the nesting limit.
func WithMaxDepth(depth int) ParseOption {
	return func(o *ParseOptions) {
		o.MaxDepth = depth
	}
}

// WithRegistry parses with a snapshot of reg instead of the global registry.
func WithRegistry(reg *Registry) ParseOption {
	return func(o *ParseOptions) {
		o.Registry = reg
	}
}

// ============================================================
// Stringify options
// ============================================================

// Replacer transforms members before they are written, as the JSON.stringify
// replacer does. Returning nil skips an object member.
type Replacer func(key string, v *Value) *Value

// TokenClass classifies emitted tokens for highlighting.
type TokenClass uint8

const (
	TokenPunct   TokenClass = iota // { } [ ] : ,
	TokenKey                       // object keys and class field names
	TokenString                    // string values
	TokenNumber                    // numbers, BigInt
	TokenLiteral                   // true false null undefined NaN Infinity
	TokenDate                      // dates
	TokenTag                       // class names, typed-array tags, ref, decoder tags
)

// Highlighter wraps an emitted token, for example in terminal colors.
type Highlighter func(class TokenClass, text string) string

// StringifyOptions configures a Stringifier.
type StringifyOptions struct {
	// Indent is repeated once per nesting level. Empty means compact output.
	Indent string

	// Replacer is applied to every member before it is written.
	Replacer Replacer

	// Keys, when non-nil, limits object members to these keys.
	Keys []string

	// IgnoreNonEnumerable omits members whose value is undefined.
	IgnoreNonEnumerable bool

	// Highlighter wraps emitted tokens.
	Highlighter Highlighter

	// Registry supplies encoders (default: a clone of the global registry).
	Registry *Registry
}

// DefaultStringifyOptions returns compact output with no hooks.
func DefaultStringifyOptions() StringifyOptions {
	return StringifyOptions{}
}

// StringifyOption configures a Stringifier.
type StringifyOption func(*StringifyOptions)

// WithIndent sets the indent string.
func WithIndent(indent string) StringifyOption {
	return func(o *StringifyOptions) {
		o.Indent = indent
	}
}

// WithSpace indents with n spaces, clamped to 10 as JSON.stringify does.
func WithSpace(n int) StringifyOption {
	if n > 10 {
		n = 10
	}
	indent := ""
	for i := 0; i < n; i++ {
		indent += " "
	}
	return WithIndent(indent)
}

// WithReplacer sets the replacer.
func WithReplacer(fn Replacer) StringifyOption {
	return func(o *StringifyOptions) {
		o.Replacer = fn
	}
}

// WithKeys limits object members to an allow list.
func WithKeys(keys []string) StringifyOption {
	return func(o *StringifyOptions) {
		o.Keys = keys
	}
}

// WithIgnoreNonEnumerable omits undefined members.
func WithIgnoreNonEnumerable(ignore bool) StringifyOption {
	return func(o *StringifyOptions) {
		o.IgnoreNonEnumerable = ignore
	}
}

// WithHighlighter sets the token highlighter.
func WithHighlighter(fn Highlighter) StringifyOption {
	return func(o *StringifyOptions) {
		o.Highlighter = fn
	}
}

// WithEncoders stringifies with a snapshot of reg instead of the global registry.
func WithEncoders(reg *Registry) StringifyOption {
	return func(o *StringifyOptions) {
		o.Registry = reg
	}
}
