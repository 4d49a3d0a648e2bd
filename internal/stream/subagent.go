package stream

// SubagentArena owns the per-parent message lists for nested agent
// conversations. ToolCalls hold a pointer to their thread rather than a
// copy, so every holder sees appends as they land. The arena is the single
// writer; everything else treats a thread's Messages as read-only and
// append-only.
type SubagentArena struct {
	threads map[string]*SubagentThread
}

func NewSubagentArena() *SubagentArena {
	return &SubagentArena{threads: make(map[string]*SubagentThread)}
}

// Append pushes msg onto the thread for parentID, creating the thread on
// first use, and returns it so the caller can bind it to the owning
// ToolCall.
func (a *SubagentArena) Append(parentID string, msg *ProcessedMessage) *SubagentThread {
	th, ok := a.threads[parentID]
	if !ok {
		th = &SubagentThread{ParentID: parentID}
		a.threads[parentID] = th
	}
	th.Messages = append(th.Messages, msg)
	return th
}

// Thread looks up the thread for a parent id without creating it.
func (a *SubagentArena) Thread(parentID string) (*SubagentThread, bool) {
	th, ok := a.threads[parentID]
	return th, ok
}

// Len returns the number of distinct parent threads.
func (a *SubagentArena) Len() int {
	return len(a.threads)
}

// Reset drops all threads. Called on rotation.
func (a *SubagentArena) Reset() {
	a.threads = make(map[string]*SubagentThread)
}
