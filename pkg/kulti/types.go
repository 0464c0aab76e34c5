package kulti

// ThoughtType tags a thought so viewers can color-code it.
type ThoughtType string

const (
	ThoughtGeneral     ThoughtType = "general"
	ThoughtReasoning   ThoughtType = "reasoning"
	ThoughtDecision    ThoughtType = "decision"
	ThoughtObservation ThoughtType = "observation"
	ThoughtEvaluation  ThoughtType = "evaluation"
	ThoughtContext     ThoughtType = "context"
	ThoughtTool        ThoughtType = "tool"
	ThoughtConfusion   ThoughtType = "confusion"
	ThoughtPrompt      ThoughtType = "prompt"
)

// Priority is the visual importance of a thought on the watch page.
type Priority string

const (
	PriorityHeadline Priority = "headline"
	PriorityWorking  Priority = "working"
	PriorityDetail   Priority = "detail"
)

// Agent status values understood by the relay.
const (
	StatusStarting = "starting"
	StatusLive     = "live"
	StatusWorking  = "working"
	StatusThinking = "thinking"
	StatusPaused   = "paused"
	StatusDone     = "done"
	StatusOffline  = "offline"
)

// CodeAction describes what happened to a streamed file.
type CodeAction string

const (
	ActionWrite  CodeAction = "write"
	ActionEdit   CodeAction = "edit"
	ActionDelete CodeAction = "delete"
)

type Thought struct {
	Type     ThoughtType    `json:"type"`
	Content  string         `json:"content"`
	Priority Priority       `json:"priority,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Code struct {
	Filename string     `json:"filename"`
	Language string     `json:"language"`
	Content  string     `json:"content"`
	Action   CodeAction `json:"action"`
}

// DiffHunk is a single replaced region of a file.
type DiffHunk struct {
	Start   int      `json:"start"`
	Removed []string `json:"removed"`
	Added   []string `json:"added"`
}

type Diff struct {
	Filename string     `json:"filename"`
	Language string     `json:"language"`
	Hunks    []DiffHunk `json:"hunks"`
}

type TerminalLine struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Task struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Goal struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type Milestone struct {
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// ErrorInfo is a structured error event shown in the debug panel.
type ErrorInfo struct {
	Message          string `json:"message"`
	File             string `json:"file,omitempty"`
	Line             int    `json:"line,omitempty"`
	Stack            string `json:"stack,omitempty"`
	RecoveryStrategy string `json:"recovery_strategy,omitempty"`
}

// Stats are counters. Sent to /hook they are increments.
type Stats struct {
	Files    int `json:"files,omitempty"`
	Commands int `json:"commands,omitempty"`
}

type Preview struct {
	URL    string `json:"url,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Art reports image generation progress.
type Art struct {
	Status   string         `json:"status"`
	Prompt   string         `json:"prompt,omitempty"`
	Model    string         `json:"model,omitempty"`
	ImageURL string         `json:"image_url,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Payload is one event posted to the relay. Every field is optional except
// the agent id, which the Client fills in.
type Payload struct {
	AgentID        string         `json:"agent_id,omitempty"`
	Status         string         `json:"status,omitempty"`
	Task           *Task          `json:"task,omitempty"`
	Thinking       string         `json:"thinking,omitempty"`
	Thought        *Thought       `json:"thought,omitempty"`
	Code           *Code          `json:"code,omitempty"`
	Diff           *Diff          `json:"diff,omitempty"`
	Terminal       []TerminalLine `json:"terminal,omitempty"`
	TerminalAppend *bool          `json:"terminal_append,omitempty"`
	Stats          *Stats         `json:"stats,omitempty"`
	Goal           *Goal          `json:"goal,omitempty"`
	Milestone      *Milestone     `json:"milestone,omitempty"`
	Error          *ErrorInfo     `json:"error,omitempty"`
	Preview        *Preview       `json:"preview,omitempty"`
	Art            *Art           `json:"art,omitempty"`
}

// Empty reports whether the payload carries no event at all.
func (p *Payload) Empty() bool {
	return p.Status == "" && p.Task == nil && p.Thinking == "" && p.Thought == nil &&
		p.Code == nil && p.Diff == nil && len(p.Terminal) == 0 && p.Stats == nil &&
		p.Goal == nil && p.Milestone == nil && p.Error == nil && p.Preview == nil && p.Art == nil
}

func boolPtr(b bool) *bool { return &b }
