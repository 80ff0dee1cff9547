// Package comments builds the threaded reply tree shown under a post or
// reel from the flat comment list the gateway returns.
package comments

import "github.com/lumeo/client/pkg/structs"

// Node is one comment plus its direct replies, in input order.
type Node struct {
	structs.Comment
	Replies []*Node
}

// BuildTree turns a flat list into a forest of root comments. A comment
// whose parent is not in the list (other page, or deleted) is demoted to a
// root rather than dropped; no comment is ever lost. Runs in O(n).
func BuildTree(flat []structs.Comment) []*Node {
	nodes := make([]*Node, len(flat))
	index := make(map[string]*Node, len(flat))
	for i, cm := range flat {
		n := &Node{Comment: cm}
		nodes[i] = n
		index[cm.Id] = n
	}

	roots := make([]*Node, 0, len(flat))
	for _, n := range nodes {
		if n.ParentId != "" {
			if parent, ok := index[n.ParentId]; ok && parent != n {
				parent.Replies = append(parent.Replies, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// Count returns the total number of comments in the forest, replies
// included.
func Count(roots []*Node) int {
	n := 0
	for _, r := range roots {
		n += 1 + Count(r.Replies)
	}
	return n
}
