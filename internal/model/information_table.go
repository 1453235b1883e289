package model

import "sync"

// DialogueTurn is one question/answer exchange within a persona's
// conversation. Immutable once appended.
type DialogueTurn struct {
	Question          string    `json:"user_utterance"`
	Queries           []Query   `json:"queries"`
	RetrievedPassages []Passage `json:"search_results"`
	Answer            string    `json:"agent_utterance"`
}

// Conversation is the full dialogue simulated for a single persona.
type Conversation struct {
	Persona Persona        `json:"perspective"`
	Turns   []DialogueTurn `json:"dlg_turns"`
}

// InformationTable is the canonical handoff between knowledge curation
// (Stage 2) and outline/article generation (Stages 3-4). It accumulates
// every dialogue turn and a deduplicated URL->Passage map. Couples
// dialogues to passages by URL, never by object reference, so the table
// stays a plain index and is trivially serializable.
//
// Built during Stage 2 under a mutex (dialogues run concurrently, one per
// persona); read-only for every stage after Stage 2 completes.
type InformationTable struct {
	mu                sync.Mutex
	Conversations     []Conversation
	URLToInfo         map[string]*Passage
	URLToUnifiedIndex map[string]int
}

// NewInformationTable creates an empty table ready for concurrent merges.
func NewInformationTable() *InformationTable {
	return &InformationTable{
		URLToInfo:         make(map[string]*Passage),
		URLToUnifiedIndex: make(map[string]int),
	}
}

// AddConversation appends a completed persona dialogue and merges its
// retrieved passages into the URL map. Safe for concurrent use across
// personas; first-sighting wins for Title/Description, snippets append.
func (t *InformationTable) AddConversation(conv Conversation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Conversations = append(t.Conversations, conv)
	for _, turn := range conv.Turns {
		for _, p := range turn.RetrievedPassages {
			if p.ChunkType == ChunkTypeNoiseMerged {
				continue
			}
			if existing, ok := t.URLToInfo[p.URL]; ok {
				existing.Merge(p)
				continue
			}
			cp := p
			t.URLToInfo[p.URL] = &cp
		}
	}
}

// AssignUnifiedIndices numbers every URL in t.URLToInfo in first-sighting
// (insertion) order, starting at 1. Must run single-threaded, after all
// Stage 2 dialogues have joined — renumbering after this point would
// break citation stability.
func (t *InformationTable) AssignUnifiedIndices() {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := 1
	for _, conv := range t.Conversations {
		for _, turn := range conv.Turns {
			for _, p := range turn.RetrievedPassages {
				if _, assigned := t.URLToUnifiedIndex[p.URL]; assigned {
					continue
				}
				if _, present := t.URLToInfo[p.URL]; !present {
					continue
				}
				t.URLToUnifiedIndex[p.URL] = next
				next++
			}
		}
	}
}

// Size returns the number of distinct URLs in the table.
func (t *InformationTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.URLToInfo)
}
