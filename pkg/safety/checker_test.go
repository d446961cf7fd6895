package safety

import (
	"strings"
	"testing"
)

func hasWarningContaining(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestDangerousImportAcrossTiers(t *testing.T) {
	code := "import os"

	balanced := NewChecker(TierBalanced).Check(code)
	if balanced.IsSafe {
		t.Error("balanced: import os must be unsafe")
	}
	if !hasWarningContaining(balanced.Warnings, "os") {
		t.Errorf("balanced: expected a warning mentioning os, got %v", balanced.Warnings)
	}

	permissive := NewChecker(TierPermissive).Check(code)
	if !permissive.IsSafe {
		t.Error("permissive: a bare import is not in the dangerous-keyword set")
	}
	if len(permissive.Warnings) == 0 {
		t.Error("permissive: warnings must still be reported")
	}
}

func TestFileChecksActiveOnlyUnderStrict(t *testing.T) {
	code := `open("f.txt")`

	strict := NewChecker(TierStrict).Check(code)
	if strict.IsSafe {
		t.Error("strict: open() must be unsafe")
	}
	if !hasWarningContaining(strict.Warnings, "File system operation") {
		t.Errorf("strict: expected a file-operation warning, got %v", strict.Warnings)
	}

	balanced := NewChecker(TierBalanced).Check(code)
	if hasWarningContaining(balanced.Warnings, "File system operation") {
		t.Errorf("balanced: file checks must be inactive, got %v", balanced.Warnings)
	}
	// The call check itself is tier-independent, so open() still warns.
	if !hasWarningContaining(balanced.Warnings, "dangerous function call: open") {
		t.Errorf("balanced: expected the call warning, got %v", balanced.Warnings)
	}
}

func TestStrictOnlyFilePattern(t *testing.T) {
	code := "f.write(data)"

	strict := NewChecker(TierStrict).Check(code)
	if strict.IsSafe {
		t.Error("strict: .write( must be unsafe")
	}

	balanced := NewChecker(TierBalanced).Check(code)
	if !balanced.IsSafe {
		t.Errorf("balanced: .write( alone must be safe, warnings %v", balanced.Warnings)
	}
	if len(balanced.Warnings) != 0 {
		t.Errorf("balanced: expected no warnings, got %v", balanced.Warnings)
	}
}

func TestShellExecutionBlockedEverywhere(t *testing.T) {
	code := "import os\nos.system('ls')"

	for _, tier := range []Tier{TierStrict, TierBalanced, TierPermissive} {
		verdict := NewChecker(tier).Check(code)
		if verdict.IsSafe {
			t.Errorf("%s: os.system must be unsafe", tier)
		}
		if !hasWarningContaining(verdict.Warnings, "os.system") {
			t.Errorf("%s: expected os.system warning, got %v", tier, verdict.Warnings)
		}
	}
}

func TestNetworkChecksInactiveUnderPermissive(t *testing.T) {
	code := "import requests\nrequests.get(url)"

	balanced := NewChecker(TierBalanced).Check(code)
	if balanced.IsSafe {
		t.Error("balanced: network operations must be unsafe")
	}
	if !hasWarningContaining(balanced.Warnings, "Network operation") {
		t.Errorf("balanced: expected a network warning, got %v", balanced.Warnings)
	}

	permissive := NewChecker(TierPermissive).Check(code)
	if !permissive.IsSafe {
		t.Errorf("permissive: network access is informational only, warnings %v", permissive.Warnings)
	}
}

func TestStructuralWarningsPrecedePatternWarnings(t *testing.T) {
	code := "import subprocess\nsubprocess.run('ls')"

	verdict := NewChecker(TierBalanced).Check(code)

	importIdx, callIdx, patternIdx := -1, -1, -1
	for i, w := range verdict.Warnings {
		switch {
		case strings.Contains(w, "dangerous import"):
			importIdx = i
		case strings.Contains(w, "Subprocess call"):
			callIdx = i
		case strings.Contains(w, "shell command execution detected"):
			patternIdx = i
		}
	}
	if importIdx < 0 || callIdx < 0 || patternIdx < 0 {
		t.Fatalf("missing expected warnings: %v", verdict.Warnings)
	}
	if !(importIdx < callIdx && callIdx < patternIdx) {
		t.Errorf("warning order wrong: import=%d call=%d pattern=%d", importIdx, callIdx, patternIdx)
	}
}

func TestSyntaxErrorShortCircuitsStructuralPass(t *testing.T) {
	verdict := NewChecker(TierStrict).Check("def f(:")
	if verdict.IsSafe {
		t.Error("strict: unparseable code must be unsafe")
	}
	if !hasWarningContaining(verdict.Warnings, "Syntax error in code") {
		t.Errorf("expected a syntax-error warning, got %v", verdict.Warnings)
	}
}

func TestStringLiteralsAreNotStructural(t *testing.T) {
	verdict := NewChecker(TierBalanced).Check(`x = "import os"`)
	if !verdict.IsSafe {
		t.Errorf("text inside a string literal is not an import, warnings %v", verdict.Warnings)
	}
	if len(verdict.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", verdict.Warnings)
	}
}

func TestFromImportWarns(t *testing.T) {
	verdict := NewChecker(TierBalanced).Check("from pathlib import Path")
	if verdict.IsSafe {
		t.Error("balanced: from pathlib import must be unsafe")
	}
	if !hasWarningContaining(verdict.Warnings, "dangerous import from: pathlib") {
		t.Errorf("expected from-import warning, got %v", verdict.Warnings)
	}
}

func TestUnknownTierFallsBackToBalanced(t *testing.T) {
	c := NewChecker("paranoid")
	if c.Tier() != TierBalanced {
		t.Errorf("tier = %s, want balanced", c.Tier())
	}
}

func TestPromptAdditionPerTier(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{TierStrict, "IMPORTANT SAFETY GUIDELINES"},
		{TierBalanced, "SAFETY GUIDELINES"},
		{TierPermissive, "GENERAL SAFETY"},
	}
	for _, tt := range tests {
		if got := NewChecker(tt.tier).PromptAddition(); !strings.Contains(got, tt.want) {
			t.Errorf("%s: prompt addition missing %q", tt.tier, tt.want)
		}
	}
}
