package language

import (
	"os"
	"os/exec"
	"strings"

	"github.com/dheerajgaurgithub/earnbycode-judge/pkg/errors"
)

// Language identifies one of the supported submission languages.
type Language string

const (
	JavaScript Language = "javascript"
	TypeScript Language = "typescript"
	Python     Language = "python"
	Java       Language = "java"
	CPP        Language = "cpp"
)

// All returns the supported languages in a stable order.
func All() []Language {
	return []Language{JavaScript, TypeScript, Python, Java, CPP}
}

// Parse validates a raw language identifier. Unknown identifiers are
// rejected before any execution is attempted.
func Parse(raw string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case JavaScript:
		return JavaScript, nil
	case TypeScript:
		return TypeScript, nil
	case Python:
		return Python, nil
	case Java:
		return Java, nil
	case CPP:
		return CPP, nil
	default:
		return "", errors.Newf(errors.LanguageNotSupported, "unsupported language %q", raw)
	}
}

// Tool is one executable a toolchain step depends on. EnvVar, when set in
// the environment, overrides the binary looked up on PATH.
type Tool struct {
	Bin    string
	EnvVar string
}

// Resolve returns the absolute path of the tool binary. The environment
// override wins over PATH lookup. The returned error carries code
// ToolchainMissing and names both the binary and the override variable.
func (t Tool) Resolve() (string, error) {
	if override := os.Getenv(t.EnvVar); t.EnvVar != "" && override != "" {
		if strings.ContainsRune(override, os.PathSeparator) {
			if _, err := os.Stat(override); err != nil {
				return "", errors.Newf(errors.ToolchainMissing,
					"%s=%s does not point to an executable", t.EnvVar, override)
			}
			return override, nil
		}
		path, err := exec.LookPath(override)
		if err != nil {
			return "", errors.Newf(errors.ToolchainMissing,
				"%s=%s not found in PATH", t.EnvVar, override)
		}
		return path, nil
	}

	path, err := exec.LookPath(t.Bin)
	if err != nil {
		return "", errors.Newf(errors.ToolchainMissing,
			"%s not found in PATH (set %s to override)", t.Bin, t.EnvVar)
	}
	return path, nil
}

// Step is one stage of a local toolchain invocation. Args is a template
// expanded with {src}, {bin} and {dir} before being split into argv.
// A step with an empty Tool.Bin executes the compiled artifact itself.
type Step struct {
	Tool Tool
	Args string
}

// Runtime names the language on the remote execution service.
type Runtime struct {
	Name    string
	Version string
}

// Toolchain describes how a language is staged and executed locally.
type Toolchain struct {
	Lang       Language
	SourceFile string
	BinFile    string // compiled artifact name, empty for interpreted languages
	Compile    *Step  // nil when there is no compile stage
	Run        Step
	InProcess  bool // evaluated by the embedded VM, needs no local binaries
	Runtime    Runtime
}

var toolchains = map[Language]Toolchain{
	JavaScript: {
		Lang:       JavaScript,
		SourceFile: "main.js",
		InProcess:  true,
		Runtime:    Runtime{Name: "javascript", Version: "18.15.0"},
	},
	TypeScript: {
		Lang:       TypeScript,
		SourceFile: "main.ts",
		InProcess:  true,
		Runtime:    Runtime{Name: "typescript", Version: "5.0.3"},
	},
	Python: {
		Lang:       Python,
		SourceFile: "main.py",
		Run:        Step{Tool: Tool{Bin: "python3", EnvVar: "JUDGE_PYTHON_BIN"}, Args: "{src}"},
		Runtime:    Runtime{Name: "python", Version: "3.10.0"},
	},
	Java: {
		Lang:       Java,
		SourceFile: "Solution.java",
		BinFile:    "Solution.class",
		Compile:    &Step{Tool: Tool{Bin: "javac", EnvVar: "JUDGE_JAVAC_BIN"}, Args: "-d {dir} {src}"},
		Run:        Step{Tool: Tool{Bin: "java", EnvVar: "JUDGE_JAVA_BIN"}, Args: "-cp {dir} Solution"},
		Runtime:    Runtime{Name: "java", Version: "15.0.2"},
	},
	CPP: {
		Lang:       CPP,
		SourceFile: "main.cpp",
		BinFile:    "solution",
		Compile:    &Step{Tool: Tool{Bin: "g++", EnvVar: "JUDGE_GPP_BIN"}, Args: "-O2 -std=c++17 -o {bin} {src}"},
		Run:        Step{Args: "{bin}"},
		Runtime:    Runtime{Name: "c++", Version: "10.2.0"},
	},
}

// Lookup returns the toolchain for a language.
func Lookup(lang Language) (Toolchain, bool) {
	tc, ok := toolchains[lang]
	return tc, ok
}

// Tools lists the binaries the toolchain needs locally, compile stage first.
func (tc Toolchain) Tools() []Tool {
	var tools []Tool
	if tc.Compile != nil && tc.Compile.Tool.Bin != "" {
		tools = append(tools, tc.Compile.Tool)
	}
	if tc.Run.Tool.Bin != "" {
		tools = append(tools, tc.Run.Tool)
	}
	return tools
}
