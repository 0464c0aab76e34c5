package kulti

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Tool is the canonical name of an agent tool, independent of which agent
// runtime reported it.
type Tool string

const (
	ToolExec      Tool = "exec"
	ToolWriteFile Tool = "write_file"
	ToolEditFile  Tool = "edit_file"
	ToolReadFile  Tool = "read_file"
	ToolSearch    Tool = "search"
	ToolBrowser   Tool = "browser"
	ToolWebFetch  Tool = "web_fetch"
	ToolWebSearch Tool = "web_search"
	ToolMemory    Tool = "memory"
	ToolDelegate  Tool = "delegate"
	ToolUnknown   Tool = "unknown"
)

var toolNames = map[string]Tool{
	// Claude Code
	"bash":      ToolExec,
	"write":     ToolWriteFile,
	"edit":      ToolEditFile,
	"read":      ToolReadFile,
	"grep":      ToolSearch,
	"glob":      ToolSearch,
	"task":      ToolDelegate,
	"webfetch":  ToolWebFetch,
	"websearch": ToolWebSearch,
	// OpenClaw
	"exec":          ToolExec,
	"write_file":    ToolWriteFile,
	"edit_file":     ToolEditFile,
	"read_file":     ToolReadFile,
	"search":        ToolSearch,
	"browser":       ToolBrowser,
	"web_fetch":     ToolWebFetch,
	"web_search":    ToolWebSearch,
	"memory_search": ToolMemory,
	"memory_get":    ToolMemory,
	// Codex CLI
	"shell":       ToolExec,
	"create_file": ToolWriteFile,
	"apply_diff":  ToolEditFile,
	// Gemini CLI
	"update_files": ToolWriteFile,
}

// NormalizeTool maps a runtime-specific tool name to its canonical form.
func NormalizeTool(raw string) Tool {
	if t, ok := toolNames[strings.ToLower(raw)]; ok {
		return t
	}
	return ToolUnknown
}

// Phase is when a tool event fired relative to the tool call.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// ToolEvent is a tool call reported by an agent runtime.
type ToolEvent struct {
	ToolName string
	Phase    Phase
	Params   map[string]any
	Result   any
}

const (
	maxCodeChars   = 5000
	maxOutputChars = 1500
)

func priorityFor(t Tool, phase Phase) Priority {
	if phase == PhaseAfter {
		return PriorityDetail
	}
	switch t {
	case ToolDelegate:
		return PriorityHeadline
	case ToolReadFile, ToolSearch, ToolMemory:
		return PriorityDetail
	default:
		return PriorityWorking
	}
}

// ClassifyBefore turns a tool invocation into a thought announcing it.
func ClassifyBefore(ev ToolEvent) *Payload {
	tool := NormalizeTool(ev.ToolName)
	meta := map[string]any{"tool": ev.ToolName}
	th := &Thought{Priority: priorityFor(tool, PhaseBefore), Metadata: meta}

	switch tool {
	case ToolExec:
		cmd := stringParam(ev.Params, "command")
		label := stringParam(ev.Params, "description")
		if label == "" {
			label = head(cmd, 120)
		}
		if label == "" {
			label = "running command"
		}
		meta["command"] = head(cmd, 200)
		th.Type, th.Content = ThoughtTool, "Running: "+label
	case ToolWriteFile:
		path := resolvePath(ev.Params)
		meta["file"] = path
		th.Type, th.Content = ThoughtDecision, "Writing: "+ShortPath(path)
	case ToolEditFile:
		path := resolvePath(ev.Params)
		meta["file"] = path
		th.Type, th.Content = ThoughtDecision, "Editing: "+ShortPath(path)
	case ToolReadFile:
		path := resolvePath(ev.Params)
		meta["file"] = path
		th.Type, th.Content = ThoughtObservation, "Reading: "+ShortPath(path)
	case ToolSearch:
		pattern := firstParam(ev.Params, "pattern", "query")
		meta["pattern"] = pattern
		th.Type, th.Content = ThoughtObservation, "Searching: "+pattern
	case ToolBrowser:
		action := firstParam(ev.Params, "action")
		if action == "" {
			action = "browse"
		}
		content := "Browser: " + action
		if target := firstParam(ev.Params, "targetUrl", "url"); target != "" {
			content += " " + target
		}
		th.Type, th.Content = ThoughtContext, content
	case ToolWebFetch:
		th.Type, th.Content = ThoughtContext, "Fetching: "+stringParam(ev.Params, "url")
	case ToolWebSearch:
		th.Type, th.Content = ThoughtContext, "Searching web: "+stringParam(ev.Params, "query")
	case ToolMemory:
		th.Type, th.Content = ThoughtContext, "Recalling: "+stringParam(ev.Params, "query")
	case ToolDelegate:
		desc := firstParam(ev.Params, "description", "prompt")
		th.Type, th.Content = ThoughtReasoning, "Delegating: "+head(desc, 200)
	default:
		th.Type, th.Content = ThoughtTool, "Using: "+ev.ToolName
	}

	return &Payload{Thought: th, Status: StatusWorking}
}

// ClassifyAfter turns a completed tool call into code, diff or terminal
// output. It returns nil when the call produced nothing worth streaming.
func ClassifyAfter(ev ToolEvent) *Payload {
	errInfo := DetectError(ev)

	switch NormalizeTool(ev.ToolName) {
	case ToolWriteFile:
		name := ShortPath(resolvePath(ev.Params))
		return &Payload{
			Code: &Code{
				Filename: name,
				Language: Language(name),
				Content:  Truncate(stringParam(ev.Params, "content"), maxCodeChars),
				Action:   ActionWrite,
			},
			Stats: &Stats{Files: 1},
			Error: errInfo,
		}

	case ToolEditFile:
		name := ShortPath(resolvePath(ev.Params))
		removed := strings.Split(stringParam(ev.Params, "old_string"), "\n")
		added := strings.Split(stringParam(ev.Params, "new_string"), "\n")

		var legacy strings.Builder
		legacy.WriteString("--- " + name + "\n")
		for _, l := range removed {
			legacy.WriteString("- " + l + "\n")
		}
		for _, l := range added {
			legacy.WriteString("+ " + l + "\n")
		}

		return &Payload{
			Code: &Code{
				Filename: name,
				Language: Language(name),
				Content:  Truncate(legacy.String(), maxCodeChars),
				Action:   ActionEdit,
			},
			Diff: &Diff{
				Filename: name,
				Language: Language(name),
				Hunks:    []DiffHunk{{Start: 0, Removed: removed, Added: added}},
			},
			Stats: &Stats{Files: 1},
			Error: errInfo,
		}

	case ToolExec:
		lines := []TerminalLine{{Type: "input", Content: "$ " + stringParam(ev.Params, "command")}}
		if out := resultString(ev.Result, maxOutputChars); strings.TrimSpace(out) != "" {
			lines = append(lines, TerminalLine{Type: "output", Content: out})
		}
		return &Payload{
			Terminal:       lines,
			TerminalAppend: boolPtr(true),
			Stats:          &Stats{Commands: 1},
			Error:          errInfo,
		}
	}

	if errInfo != nil {
		return &Payload{Error: errInfo}
	}
	return nil
}

var (
	errorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)error:`),
		regexp.MustCompile(`Error: `),
		regexp.MustCompile(`ENOENT`),
		regexp.MustCompile(`EACCES`),
		regexp.MustCompile(`(?i)failed`),
		regexp.MustCompile(`(?i)exit code [1-9]`),
		regexp.MustCompile(`(?i)command not found`),
		regexp.MustCompile(`(?i)compilation failed`),
		regexp.MustCompile(`(?i)type error`),
		regexp.MustCompile(`(?i)syntax error`),
	}
	errorLine = regexp.MustCompile(`(?i)error|ENOENT|EACCES|failed|exit code`)
)

// DetectError scans a tool result for common failure output.
func DetectError(ev ToolEvent) *ErrorInfo {
	if ev.Result == nil {
		return nil
	}
	result := resultString(ev.Result, -1)

	matched := false
	for _, p := range errorPatterns {
		if p.MatchString(result) {
			matched = true
			break
		}
	}
	if !matched {
		return nil
	}

	lines := strings.Split(result, "\n")
	msg := lines[0]
	for _, l := range lines {
		if errorLine.MatchString(l) {
			msg = l
			break
		}
	}
	if msg == "" {
		msg = "Unknown error"
	}

	info := &ErrorInfo{
		Message: Truncate(msg, 500),
		Stack:   Truncate(result, 2000),
	}
	if file := resolvePath(ev.Params); file != "unknown" {
		info.File = file
	}
	return info
}

func resultString(v any, max int) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			s = TruncateValue(t, maxCodeChars)
		} else {
			s = string(b)
		}
	}
	if max < 0 {
		return s
	}
	return Truncate(s, max)
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func firstParam(params map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringParam(params, k); s != "" {
			return s
		}
	}
	return ""
}

func resolvePath(params map[string]any) string {
	if p := firstParam(params, "file_path", "path", "filename"); p != "" {
		return p
	}
	return "unknown"
}

// head returns at most n runes of s without a truncation marker.
func head(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
