package domain

import "strings"

// NewUserID builds the canonical user id "<channel>:<native>" used by every
// component. The channel prefix is how outbound actions find their transport.
func NewUserID(channelID, native string) string {
	return channelID + ":" + native
}

// SplitUserID separates a user id into its channel and native parts.
// ok is false when the id carries no channel prefix.
func SplitUserID(id string) (channelID, native string, ok bool) {
	i := strings.IndexByte(id, ':')
	if i <= 0 || i == len(id)-1 {
		return "", id, false
	}
	return id[:i], id[i+1:], true
}
