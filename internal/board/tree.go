package board

import (
	"database/sql"
	"sort"

	"github.com/danmuck/meshboard/internal/store"
)

// Thread is one root note with every visible descendant, oldest first.
type Thread struct {
	Note    store.Note
	Replies []store.Note
}

// BuildTree reconstructs the reply hierarchy of one board's notes.
//
// With includeArchived false, a live reply whose parent is tombstoned is
// re-pointed at its nearest live ancestor; when no live ancestor exists the
// reply becomes a root and keeps its own descendants. Replies whose parent is
// not among notes are shown as roots. Cycles in parent links are tolerated.
func BuildTree(notes []store.Note, includeArchived bool) []Thread {
	visible := notes
	if !includeArchived {
		visible = liveWithResolvedParents(notes)
	}

	present := make(map[string]bool, len(visible))
	for _, n := range visible {
		if id := n.MsgID(); id != "" {
			present[id] = true
		}
	}

	var roots []store.Note
	children := make(map[string][]store.Note)
	for _, n := range visible {
		parent := n.ParentMsgID()
		if parent == "" || n.IsTempParentNote || !present[parent] {
			roots = append(roots, n)
			continue
		}
		children[parent] = append(children[parent], n)
	}

	reached := make(map[string]bool, len(visible))
	out := make([]Thread, 0, len(roots))
	add := func(root store.Note) {
		reached[root.NoteID] = true
		t := Thread{Note: root}
		if id := root.MsgID(); id != "" {
			t.Replies = collectReplies(id, children, map[string]bool{}, reached)
			sort.SliceStable(t.Replies, func(i, j int) bool {
				return t.Replies[i].CreatedAt < t.Replies[j].CreatedAt
			})
		}
		out = append(out, t)
	}
	for _, root := range roots {
		add(root)
	}

	// Notes caught in a parent cycle are unreachable from every root. The
	// oldest note of each cycle is shown as its root.
	var stranded []store.Note
	for _, n := range visible {
		if !reached[n.NoteID] {
			stranded = append(stranded, n)
		}
	}
	sort.SliceStable(stranded, func(i, j int) bool {
		return stranded[i].CreatedAt < stranded[j].CreatedAt
	})
	for _, n := range stranded {
		if reached[n.NoteID] {
			continue
		}
		n.ReplyLoraMsgID = sql.NullString{}
		add(n)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Note, out[j].Note
		if a.IsPinnedNote != b.IsPinnedNote {
			return a.IsPinnedNote
		}
		return a.CreatedAt > b.CreatedAt
	})
	return out
}

func collectReplies(target string, children map[string][]store.Note, visited, reached map[string]bool) []store.Note {
	if visited[target] {
		return nil
	}
	visited[target] = true
	var found []store.Note
	for _, reply := range children[target] {
		if reached[reply.NoteID] {
			continue
		}
		reached[reply.NoteID] = true
		found = append(found, reply)
		if id := reply.MsgID(); id != "" {
			found = append(found, collectReplies(id, children, visited, reached)...)
		}
	}
	return found
}

func liveWithResolvedParents(notes []store.Note) []store.Note {
	byMsgID := make(map[string]store.Note, len(notes))
	tombstoned := make(map[string]bool)
	for _, n := range notes {
		id := n.MsgID()
		if id == "" {
			continue
		}
		byMsgID[id] = n
		if n.Deleted {
			tombstoned[id] = true
		}
	}

	out := make([]store.Note, 0, len(notes))
	for _, n := range notes {
		if n.Deleted {
			continue
		}
		parent := n.ParentMsgID()
		if parent != "" && tombstoned[parent] {
			if live := nearestLiveAncestor(parent, byMsgID, tombstoned); live != "" {
				n.ReplyLoraMsgID = sql.NullString{String: live, Valid: true}
			} else {
				n.ReplyLoraMsgID = sql.NullString{}
				n.IsTempParentNote = false
			}
		}
		out = append(out, n)
	}
	return out
}

// nearestLiveAncestor walks parent links from id; "" means the chain ran out.
func nearestLiveAncestor(id string, byMsgID map[string]store.Note, tombstoned map[string]bool) string {
	visited := make(map[string]bool)
	for id != "" {
		if visited[id] {
			return ""
		}
		visited[id] = true
		n, known := byMsgID[id]
		if !known {
			return ""
		}
		if !tombstoned[id] {
			return id
		}
		id = n.ParentMsgID()
	}
	return ""
}
