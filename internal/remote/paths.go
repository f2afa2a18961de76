package remote

import (
	"sort"
	"strings"
)

const (
	usersRoot     = "users"
	chatsRoot     = "chats"
	messagesRoot  = "messages"
	userChatsRoot = "userChats"
)

func UsersPath() string             { return usersRoot }
func UserPath(userID string) string { return usersRoot + "/" + userID }
func ChatsPath() string             { return chatsRoot }
func ChatPath(chatID string) string { return chatsRoot + "/" + chatID }
func ChatLastMessagePath(chatID string) string {
	return ChatPath(chatID) + "/lastMessage"
}
func MessagesPath(chatID string) string { return messagesRoot + "/" + chatID }
func MessagePath(chatID, messageID string) string {
	return MessagesPath(chatID) + "/" + messageID
}
func UserChatsPath(userID string) string { return userChatsRoot + "/" + userID }

// SplitPath cleans path and returns its non-empty segments.
func SplitPath(path string) []string {
	raw := strings.Split(path, "/")
	segs := raw[:0]
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// CleanPath normalizes path to its canonical slash-joined form.
func CleanPath(path string) string {
	return strings.Join(SplitPath(path), "/")
}

// IsUnder reports whether path is strictly below parent. The root "" is an
// ancestor of every non-root path.
func IsUnder(path, parent string) bool {
	path, parent = CleanPath(path), CleanPath(parent)
	if parent == "" {
		return path != ""
	}
	return strings.HasPrefix(path, parent+"/")
}

// ChildKey returns the first segment of path below parent. ok is false when
// path is not strictly under parent.
func ChildKey(path, parent string) (string, bool) {
	if !IsUnder(path, parent) {
		return "", false
	}
	rest := strings.TrimPrefix(CleanPath(path), CleanPath(parent))
	rest = strings.TrimPrefix(rest, "/")
	key, _, _ := strings.Cut(rest, "/")
	return key, true
}

// Join joins segments with "/".
func Join(parts ...string) string {
	return CleanPath(strings.Join(parts, "/"))
}

// SortedByDepth returns the keys of values ordered so that ancestors come
// before their descendants. Applying writes in this order lets a deeper
// write in the same batch win over an ancestor write.
func SortedByDepth[V any](values map[string]V) []string {
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		di, dj := len(SplitPath(paths[i])), len(SplitPath(paths[j]))
		if di != dj {
			return di < dj
		}
		return paths[i] < paths[j]
	})
	return paths
}
