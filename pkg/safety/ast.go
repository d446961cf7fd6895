// Package safety statically vets generated Python code against a
// configurable risk tier. The analysis is advisory, not isolation: it
// produces a verdict and warnings, never blocks suggestion creation.
package safety

// Node is the closed set of syntax shapes the scanner surfaces. Only
// the shapes the checker cares about are modeled: imports, calls, and
// attribute access.
type Node interface {
	accept(v visitor)
}

// ImportNode is one module of an import statement, reduced to its root
// package ("os.path" reports "os").
type ImportNode struct {
	Module string
}

// FromImportNode is the source module of a from-import statement,
// reduced to its root package.
type FromImportNode struct {
	Module string
}

// CallNode is a function call. Receiver is set only for single-level
// attribute calls ("os.system(...)"); bare calls ("open(...)") leave it
// empty.
type CallNode struct {
	Receiver string
	Func     string
}

// AttributeNode is a single-level attribute access on a plain name
// ("os.remove"). Deeper chains only surface their innermost pair.
type AttributeNode struct {
	Receiver string
	Attr     string
}

func (n ImportNode) accept(v visitor)     { v.visitImport(n) }
func (n FromImportNode) accept(v visitor) { v.visitFromImport(n) }
func (n CallNode) accept(v visitor)       { v.visitCall(n) }
func (n AttributeNode) accept(v visitor)  { v.visitAttribute(n) }

// visitor handles each node variant exhaustively.
type visitor interface {
	visitImport(n ImportNode)
	visitFromImport(n FromImportNode)
	visitCall(n CallNode)
	visitAttribute(n AttributeNode)
}

// walk dispatches every node to the visitor in source order.
func walk(nodes []Node, v visitor) {
	for _, n := range nodes {
		n.accept(v)
	}
}
