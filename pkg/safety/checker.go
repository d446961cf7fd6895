package safety

import (
	"fmt"
	"regexp"
	"strings"

	"nbagent/pkg/logx"
)

// Tier is the named strictness level controlling which checks are
// active and how warnings map to a verdict.
type Tier string

const (
	TierStrict     Tier = "strict"
	TierBalanced   Tier = "balanced"
	TierPermissive Tier = "permissive"
)

// IsValid reports whether t is one of the defined tiers.
func (t Tier) IsValid() bool {
	switch t {
	case TierStrict, TierBalanced, TierPermissive:
		return true
	}
	return false
}

// Verdict is the outcome of one check: a safe/unsafe decision plus the
// ordered warning list that produced it. Structural warnings precede
// pattern warnings; no deduplication is performed.
type Verdict struct {
	IsSafe   bool
	Warnings []string
}

var dangerousImports = map[string]bool{
	"os": true, "subprocess": true, "sys": true, "shutil": true,
	"pathlib": true, "glob": true, "socket": true, "urllib": true,
	"requests": true, "http": true, "ftplib": true, "smtplib": true,
	"telnetlib": true, "webbrowser": true,
}

var dangerousFunctions = map[string]bool{
	"exec": true, "eval": true, "compile": true, "__import__": true,
	"open": true, "input": true, "raw_input": true, "exit": true,
	"quit": true,
}

var fileOperations = map[string]bool{
	"open": true, "read": true, "write": true, "remove": true,
	"delete": true, "unlink": true, "rmdir": true, "mkdir": true,
	"makedirs": true,
}

var networkOperations = map[string]bool{
	"urlopen": true, "request": true, "get": true, "post": true,
	"put": true, "delete": true, "connect": true, "send": true,
	"recv": true,
}

var shellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.system\s*\(`),
	regexp.MustCompile(`subprocess\.(run|call|check_output|Popen)`),
	regexp.MustCompile(`!\s*[a-zA-Z]`), // notebook shell escapes
}

var filePatterns = []*regexp.Regexp{
	regexp.MustCompile(`open\s*\(`),
	regexp.MustCompile(`with\s+open\s*\(`),
	regexp.MustCompile(`\.write\s*\(`),
	regexp.MustCompile(`\.read\s*\(`),
	regexp.MustCompile(`os\.remove\s*\(`),
	regexp.MustCompile(`shutil\.`),
}

var networkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`requests\.`),
	regexp.MustCompile(`urllib\.`),
	regexp.MustCompile(`http\.`),
	regexp.MustCompile(`socket\.`),
	regexp.MustCompile(`urlopen\s*\(`),
}

// permissiveBlockKeywords are the only warning markers that flip the
// verdict under the permissive tier.
var permissiveBlockKeywords = []string{"system", "exec", "eval", "__import__"}

// Checker vets code against one tier. Pure analysis, no side effects
// beyond debug logging.
type Checker struct {
	tier   Tier
	logger *logx.Logger
}

// NewChecker creates a checker for the given tier. An unknown tier
// falls back to balanced.
func NewChecker(tier Tier) *Checker {
	if !tier.IsValid() {
		tier = TierBalanced
	}
	return &Checker{tier: tier, logger: logx.NewLogger("safety")}
}

// Tier returns the checker's configured tier.
func (c *Checker) Tier() Tier {
	return c.tier
}

// Check analyzes one code string. A parse failure contributes a single
// syntax-error warning and skips the structural pass; the pattern pass
// always runs.
func (c *Checker) Check(code string) Verdict {
	var warnings []string

	nodes, err := parse(code)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("Syntax error in code: %v", err))
	} else {
		sv := &structuralVisitor{tier: c.tier, imported: make(map[string]bool)}
		walk(nodes, sv)
		warnings = append(warnings, sv.warnings...)
	}

	warnings = append(warnings, c.patternWarnings(code)...)

	verdict := Verdict{IsSafe: c.decide(warnings), Warnings: warnings}
	if !verdict.IsSafe {
		c.logger.Debug("code rejected under %s tier with %d warnings", c.tier, len(warnings))
	}
	return verdict
}

func (c *Checker) patternWarnings(code string) []string {
	var warnings []string

	for _, pattern := range shellPatterns {
		if pattern.MatchString(code) {
			warnings = append(warnings, "Potential shell command execution detected: "+pattern.String())
		}
	}

	if c.tier == TierStrict {
		for _, pattern := range filePatterns {
			if pattern.MatchString(code) {
				warnings = append(warnings, "File system operation detected: "+pattern.String())
			}
		}
	}

	if c.tier == TierStrict || c.tier == TierBalanced {
		for _, pattern := range networkPatterns {
			if pattern.MatchString(code) {
				warnings = append(warnings, "Network operation detected: "+pattern.String())
			}
		}
	}

	return warnings
}

// decide maps the combined warning list to a verdict. Strict and
// balanced share the any-warning threshold; they differ in which checks
// are active upstream. Permissive blocks only on the dangerous-keyword
// markers.
func (c *Checker) decide(warnings []string) bool {
	if len(warnings) == 0 {
		return true
	}

	if c.tier == TierPermissive {
		for _, warning := range warnings {
			lower := strings.ToLower(warning)
			for _, keyword := range permissiveBlockKeywords {
				if strings.Contains(lower, keyword) {
					return false
				}
			}
		}
		return true
	}

	return false
}

// PromptAddition returns tier-specific guideline text appended to the
// generation system prompt.
func (c *Checker) PromptAddition() string {
	switch c.tier {
	case TierStrict:
		return "\n\nIMPORTANT SAFETY GUIDELINES:\n" +
			"- Do not generate code that accesses the file system\n" +
			"- Do not generate code that makes network requests\n" +
			"- Do not generate code that executes shell commands\n" +
			"- Focus on data analysis and visualization only\n" +
			"- Use only safe, read-only operations"
	case TierPermissive:
		return "\n\nGENERAL SAFETY:\n" +
			"- Be thoughtful about potentially destructive operations\n" +
			"- Consider the security implications of generated code"
	default:
		return "\n\nSAFETY GUIDELINES:\n" +
			"- Avoid shell command execution unless specifically requested\n" +
			"- Be cautious with file system operations\n" +
			"- Prefer safe data manipulation and analysis operations\n" +
			"- Ask for confirmation before risky operations"
	}
}

// structuralVisitor collects warnings from the scanned nodes. Attribute
// checks only fire for receivers that were imported earlier in the same
// code, and are gated by tier: file operations under strict, network
// operations under strict and balanced.
type structuralVisitor struct {
	tier     Tier
	imported map[string]bool
	warnings []string
}

func (v *structuralVisitor) visitImport(n ImportNode) {
	v.imported[n.Module] = true
	if dangerousImports[n.Module] {
		v.warnings = append(v.warnings, "Potentially dangerous import: "+n.Module)
	}
}

func (v *structuralVisitor) visitFromImport(n FromImportNode) {
	v.imported[n.Module] = true
	if dangerousImports[n.Module] {
		v.warnings = append(v.warnings, "Potentially dangerous import from: "+n.Module)
	}
}

func (v *structuralVisitor) visitCall(n CallNode) {
	if dangerousFunctions[n.Func] {
		v.warnings = append(v.warnings, "Potentially dangerous function call: "+n.Func)
	}

	switch {
	case n.Receiver == "os" && n.Func == "system":
		v.warnings = append(v.warnings, "Shell command execution via os.system()")
	case n.Receiver == "subprocess":
		v.warnings = append(v.warnings, fmt.Sprintf("Subprocess call: subprocess.%s()", n.Func))
	}
}

func (v *structuralVisitor) visitAttribute(n AttributeNode) {
	if !v.imported[n.Receiver] {
		return
	}

	switch {
	case fileOperations[n.Attr] && v.tier == TierStrict:
		v.warnings = append(v.warnings, fmt.Sprintf("File operation: %s.%s", n.Receiver, n.Attr))
	case networkOperations[n.Attr] && (v.tier == TierStrict || v.tier == TierBalanced):
		v.warnings = append(v.warnings, fmt.Sprintf("Network operation: %s.%s", n.Receiver, n.Attr))
	}
}
