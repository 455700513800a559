package skeleton

import (
	"regexp"
)

// Symbol kinds.
const (
	KindFunction  = "function"
	KindMethod    = "method"
	KindClass     = "class"
	KindInterface = "interface"
	KindType      = "type"
	KindStruct    = "struct"
	KindEnum      = "enum"
	KindTrait     = "trait"
	KindImpl      = "impl"
	KindModule    = "module"
	KindHeading   = "heading"
)

// rule matches one declaration form anchored on a line's leading tokens.
// name is the capture group holding the symbol name. When indentKind is set
// and the line is indented, the symbol gets indentKind instead of kind.
// Call-shaped rules are loose: their captures are checked against
// controlWords.
type rule struct {
	kind       string
	indentKind string
	re         *regexp.Regexp
	name       int
	loose      bool
}

func r(kind string, name int, pattern string) rule {
	return rule{kind: kind, re: regexp.MustCompile(pattern), name: name}
}

func loose(x rule) rule {
	x.loose = true
	return x
}

func ri(kind, indentKind string, name int, pattern string) rule {
	return rule{kind: kind, indentKind: indentKind, re: regexp.MustCompile(pattern), name: name}
}

var goRules = []rule{
	r(KindMethod, 1, `^func\s+\([^)]*\)\s*([A-Za-z_]\w*)\s*[\[(]`),
	r(KindFunction, 1, `^func\s+([A-Za-z_]\w*)\s*[\[(]`),
	r(KindStruct, 1, `^type\s+([A-Za-z_]\w*)(\[[^\]]*\])?\s+struct\b`),
	r(KindInterface, 1, `^type\s+([A-Za-z_]\w*)(\[[^\]]*\])?\s+interface\b`),
	r(KindType, 1, `^type\s+([A-Za-z_]\w*)\b`),
	r(KindStruct, 1, `^\t([A-Za-z_]\w*)\s+struct\s*\{`),
	r(KindInterface, 1, `^\t([A-Za-z_]\w*)\s+interface\s*\{`),
}

var scriptRules = []rule{
	r(KindFunction, 1, `^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*[<(]`),
	r(KindClass, 1, `^(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][\w$]*)`),
	r(KindInterface, 1, `^(?:export\s+)?(?:declare\s+)?interface\s+([A-Za-z_$][\w$]*)`),
	r(KindType, 1, `^(?:export\s+)?(?:declare\s+)?type\s+([A-Za-z_$][\w$]*)\s*(?:<[^=]*>)?\s*=`),
	r(KindEnum, 1, `^(?:export\s+)?(?:declare\s+)?(?:const\s+)?enum\s+([A-Za-z_$][\w$]*)`),
	r(KindModule, 1, `^(?:export\s+)?(?:declare\s+)?namespace\s+([A-Za-z_$][\w.$]*)`),
	r(KindFunction, 1, `^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*(?::[^=]+)?=>|[A-Za-z_$][\w$]*\s*=>)`),
	loose(r(KindMethod, 1, `^\s+(?:(?:public|private|protected|static|async|readonly|override|get|set)\s+)*([A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\([^)]*\)\s*(?::\s*[^{;]+)?\{\s*$`)),
}

var pythonRules = []rule{
	ri(KindFunction, KindMethod, 1, `^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`),
	ri(KindClass, KindClass, 1, `^\s*class\s+([A-Za-z_]\w*)`),
}

var rubyRules = []rule{
	r(KindClass, 1, `^\s*class\s+([A-Z][\w:]*)`),
	r(KindModule, 1, `^\s*module\s+([A-Z][\w:]*)`),
	r(KindMethod, 1, `^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`),
}

var jvmRules = []rule{
	r(KindInterface, 1, `^\s*(?:(?:public|private|protected|internal|abstract|sealed|static|partial|fun)\s+)*@?interface\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*(?:(?:public|private|protected|internal|static)\s+)*enum\s+(?:class\s+)?([A-Za-z_]\w*)`),
	r(KindClass, 2, `^\s*(?:(?:public|private|protected|internal|abstract|final|static|sealed|data|open|partial|inner|case|readonly)\s+)*(class|record|object|struct)\s+([A-Za-z_]\w*)`),
	r(KindTrait, 1, `^\s*(?:(?:sealed|private)\s+)*trait\s+([A-Za-z_]\w*)`),
	r(KindFunction, 1, `^\s*(?:(?:public|private|protected|internal|override|suspend|inline|open|operator|infix|tailrec)\s+)*fun\s+(?:<[^>]+>\s*)?(?:[\w.]+\.)?([A-Za-z_]\w*)\s*\(`),
	r(KindMethod, 1, `^\s*(?:(?:override|private|protected|final|implicit)\s+)*def\s+([A-Za-z_]\w*)`),
	loose(r(KindMethod, 1, `^\s+(?:(?:public|private|protected|internal|static|final|abstract|synchronized|override|virtual|async|native|default)\s+)+[\w<>\[\],.?\s]+?\s+([A-Za-z_]\w*)\s*\(`)),
}

var rustRules = []rule{
	r(KindFunction, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:const\s+)?(?:async\s+)?(?:unsafe\s+)?(?:extern\s+"[^"]*"\s+)?fn\s+([A-Za-z_]\w*)`),
	r(KindStruct, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?enum\s+([A-Za-z_]\w*)`),
	r(KindTrait, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?(?:unsafe\s+)?trait\s+([A-Za-z_]\w*)`),
	r(KindImpl, 1, `^\s*(?:unsafe\s+)?impl(?:<[^>]*>)?\s+(?:[\w:<>, ]+\s+for\s+)?([A-Za-z_][\w:]*)`),
	r(KindModule, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?mod\s+([A-Za-z_]\w*)`),
	r(KindType, 1, `^\s*(?:pub(?:\([^)]*\))?\s+)?type\s+([A-Za-z_]\w*)`),
}

var swiftRules = []rule{
	r(KindClass, 2, `^\s*(?:(?:public|private|internal|open|fileprivate|final)\s+)*(class|actor)\s+([A-Za-z_]\w*)`),
	r(KindStruct, 1, `^\s*(?:(?:public|private|internal|fileprivate)\s+)*struct\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*(?:(?:public|private|internal|fileprivate|indirect)\s+)*enum\s+([A-Za-z_]\w*)`),
	r(KindInterface, 1, `^\s*(?:(?:public|private|internal|fileprivate)\s+)*protocol\s+([A-Za-z_]\w*)`),
	r(KindImpl, 1, `^\s*(?:(?:public|private|internal|fileprivate)\s+)*extension\s+([A-Za-z_][\w.]*)`),
	ri(KindFunction, KindMethod, 1, `^\s*(?:(?:public|private|internal|open|fileprivate|static|class|override|final|mutating|@\w+)\s+)*func\s+([A-Za-z_]\w*)`),
}

var cRules = []rule{
	r(KindStruct, 1, `^(?:typedef\s+)?struct\s+([A-Za-z_]\w*)\s*\{?\s*$`),
	r(KindEnum, 1, `^(?:typedef\s+)?enum\s+(?:class\s+)?([A-Za-z_]\w*)`),
	r(KindClass, 1, `^(?:template\s*<[^>]*>\s*)?class\s+([A-Za-z_]\w*)`),
	r(KindModule, 1, `^namespace\s+([A-Za-z_][\w:]*)`),
	loose(r(KindFunction, 1, `^(?:(?:static|inline|extern|virtual|constexpr)\s+)*[A-Za-z_][\w:<>,\s]*[\s*&]+\**([A-Za-z_][\w]*(?:::~?[A-Za-z_]\w*)*)\s*\([^;]*$`)),
}

var phpRules = []rule{
	r(KindClass, 1, `^\s*(?:(?:abstract|final|readonly)\s+)*class\s+([A-Za-z_]\w*)`),
	r(KindInterface, 1, `^\s*interface\s+([A-Za-z_]\w*)`),
	r(KindTrait, 1, `^\s*trait\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*enum\s+([A-Za-z_]\w*)`),
	ri(KindFunction, KindMethod, 1, `^\s*(?:(?:public|private|protected|static|abstract|final)\s+)*function\s+&?([A-Za-z_]\w*)`),
}

var dartRules = []rule{
	r(KindClass, 1, `^\s*(?:abstract\s+)?(?:base\s+|final\s+|sealed\s+)?class\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*enum\s+([A-Za-z_]\w*)`),
	r(KindTrait, 1, `^\s*mixin\s+([A-Za-z_]\w*)`),
	r(KindImpl, 1, `^\s*extension\s+([A-Za-z_]\w*)`),
	loose(ri(KindFunction, KindMethod, 1, `^\s*(?:static\s+)?(?:Future<[^>]*>|Stream<[^>]*>|void|int|double|num|bool|String|dynamic|[A-Z]\w*(?:<[^>]*>)?\??)\s+([a-z_]\w*)\s*\(`)),
}

var elixirRules = []rule{
	r(KindModule, 1, `^\s*defmodule\s+([A-Z][\w.]*)`),
	r(KindFunction, 1, `^\s*defp?\s+([a-z_]\w*[?!]?)`),
	r(KindFunction, 1, `^\s*defmacrop?\s+([a-z_]\w*[?!]?)`),
}

var luaRules = []rule{
	loose(r(KindFunction, 1, `^\s*(?:local\s+)?function\s+([A-Za-z_][\w.:]*)\s*\(`)),
}

var shellRules = []rule{
	loose(r(KindFunction, 1, `^\s*(?:function\s+)?([A-Za-z_][\w-]*)\s*\(\)\s*\{?`)),
	loose(r(KindFunction, 1, `^\s*function\s+([A-Za-z_][\w-]*)\s*\{?`)),
}

var sqlRules = []rule{
	r(KindType, 2, `(?i)^\s*create\s+(?:or\s+replace\s+)?(?:temporary\s+)?(table|view|type)\s+(?:if\s+not\s+exists\s+)?([\w."]+)`),
	r(KindFunction, 2, `(?i)^\s*create\s+(?:or\s+replace\s+)?(function|procedure|trigger)\s+([\w."]+)`),
}

var protoRules = []rule{
	r(KindStruct, 1, `^\s*message\s+([A-Za-z_]\w*)`),
	r(KindInterface, 1, `^\s*service\s+([A-Za-z_]\w*)`),
	r(KindMethod, 1, `^\s*rpc\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*enum\s+([A-Za-z_]\w*)`),
}

var graphqlRules = []rule{
	r(KindType, 2, `^\s*(?:extend\s+)?(type|input|union|scalar)\s+([A-Za-z_]\w*)`),
	r(KindInterface, 1, `^\s*interface\s+([A-Za-z_]\w*)`),
	r(KindEnum, 1, `^\s*enum\s+([A-Za-z_]\w*)`),
}

var markdownRules = []rule{
	r(KindHeading, 1, `^#{1,3}\s+(.+?)\s*#*\s*$`),
}

var makefileRules = []rule{
	loose(r(KindFunction, 1, `^([A-Za-z_][\w.-]*)\s*:(?:[^=]|$)`)),
}

var rulesByLanguage = map[string][]rule{
	"go":         goRules,
	"typescript": scriptRules,
	"javascript": scriptRules,
	"vue":        scriptRules,
	"svelte":     scriptRules,
	"python":     pythonRules,
	"ruby":       rubyRules,
	"java":       jvmRules,
	"kotlin":     jvmRules,
	"scala":      jvmRules,
	"csharp":     jvmRules,
	"groovy":     jvmRules,
	"rust":       rustRules,
	"swift":      swiftRules,
	"c":          cRules,
	"cpp":        cRules,
	"php":        phpRules,
	"dart":       dartRules,
	"elixir":     elixirRules,
	"lua":        luaRules,
	"shell":      shellRules,
	"sql":        sqlRules,
	"proto":      protoRules,
	"graphql":    graphqlRules,
	"markdown":   markdownRules,
	"makefile":   makefileRules,
}

// keywords that look like calls or declarations under loose patterns
var controlWords = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "foreach": {}, "while": {}, "do": {}, "switch": {}, "case": {},
	"catch": {}, "try": {}, "finally": {}, "return": {}, "throw": {}, "new": {}, "delete": {},
	"sizeof": {}, "typeof": {}, "await": {}, "yield": {}, "with": {}, "elif": {}, "unless": {},
	"until": {}, "function": {}, "super": {}, "this": {}, "import": {}, "require": {},
}

// HasRules reports whether symbol extraction is defined for a language.
func HasRules(language string) bool {
	_, ok := rulesByLanguage[language]
	return ok
}

func isControlWord(name string) bool {
	_, ok := controlWords[name]
	return ok
}
