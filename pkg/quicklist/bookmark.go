package quicklist

// CreateBookmark installs a named anchor to node (spec §4.2
// "Bookmarks... creating a bookmark reallocates the header"; here, the
// header's tail slice simply grows). Fails if the name is already taken
// or the table is at its cap of 15.
func (l *List) CreateBookmark(name string, node *Node) error {
	for _, b := range l.bookmarks {
		if b.name == name {
			return ErrBookmarkExists
		}
	}
	if len(l.bookmarks) >= maxBookmarks {
		return ErrBookmarksFull
	}
	l.bookmarks = append(l.bookmarks, bookmark{name: name, node: node})
	return nil
}

// DeleteBookmark removes a named anchor, reporting whether it existed.
func (l *List) DeleteBookmark(name string) bool {
	for i, b := range l.bookmarks {
		if b.name == name {
			l.bookmarks = append(l.bookmarks[:i], l.bookmarks[i+1:]...)
			return true
		}
	}
	return false
}

// FindBookmark resolves a named anchor to its current Node.
func (l *List) FindBookmark(name string) (*Node, bool) {
	for _, b := range l.bookmarks {
		if b.name == name {
			return b.node, true
		}
	}
	return nil, false
}

// BookmarkCount reports how many bookmarks are currently installed.
func (l *List) BookmarkCount() int { return len(l.bookmarks) }
