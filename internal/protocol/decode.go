package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// matcher is one accepted shape of a command prefix.
type matcher struct {
	kind   Kind
	legacy bool
	re     *regexp.Regexp
	build  func(m []string) Command
}

// Ordered: current arity before legacy for each prefix.
var matchers = []matcher{
	{
		kind: KindMessage,
		re:   regexp.MustCompile(`(?s)^/msg \[([^,\]]+),([^,\]]*),([^\]]*)\](.*)$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], ColorID: m[2], AuthorKey: m[3], Body: m[4]}
		},
	},
	{
		kind:   KindMessage,
		legacy: true,
		re:     regexp.MustCompile(`(?s)^/msg \[([^,\]]+)\](.*)$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], Body: m[2]}
		},
	},
	{
		kind: KindReply,
		re:   regexp.MustCompile(`(?s)^/reply <([^,>]+),([^,>]*),([^>]*)>\[([^\]]+)\](.*)$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], ColorID: m[2], AuthorKey: m[3], ParentID: m[4], Body: m[5]}
		},
	},
	{
		kind:   KindReply,
		legacy: true,
		re:     regexp.MustCompile(`(?s)^/reply <([^,>]+)>\[([^\]]+)\](.*)$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], ParentID: m[2], Body: m[3]}
		},
	},
	{
		kind: KindColor,
		re:   regexp.MustCompile(`^/color \[([^\]]+)\]([^,]*),\s*(\d+)\s*$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], AuthorKey: strings.TrimSpace(m[2]), ColorID: m[3]}
		},
	},
	{
		kind: KindAuthor,
		re:   regexp.MustCompile(`^/author \[([^\]]+)\](\S+)\s*$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], AuthorKey: m[2]}
		},
	},
	{
		kind: KindArchive,
		re:   regexp.MustCompile(`^/archive \[([^\]]+)\](\S*)\s*$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], AuthorKey: m[2]}
		},
	},
	{
		kind: KindPin,
		re:   regexp.MustCompile(`^/pin \[([^\]]+)\](\S*)\s*$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1], AuthorKey: m[2]}
		},
	},
	{
		kind: KindAck,
		re:   regexp.MustCompile(`^/ack\s+(\S+)\s*$`),
		build: func(m []string) Command {
			return Command{MsgID: m[1]}
		},
	},
}

// Decode parses one radio text payload. Unrecognised prefixes return
// ErrUnknownCommand; a recognised prefix in an unaccepted shape returns ErrMalformed.
func Decode(text string) (Command, error) {
	kind, ok := prefixKind(text)
	if !ok {
		return Command{}, ErrUnknownCommand
	}
	for _, m := range matchers {
		if m.kind != kind {
			continue
		}
		sub := m.re.FindStringSubmatch(text)
		if sub == nil {
			continue
		}
		cmd := m.build(sub)
		cmd.Kind = m.kind
		cmd.Legacy = m.legacy
		cmd.MsgID = strings.TrimSpace(cmd.MsgID)
		cmd.ParentID = strings.TrimSpace(cmd.ParentID)
		cmd.ColorID = strings.TrimSpace(cmd.ColorID)
		cmd.AuthorKey = strings.TrimSpace(cmd.AuthorKey)
		if cmd.MsgID == "" {
			return Command{}, fmt.Errorf("%w: %s", ErrMissingID, kind)
		}
		return cmd, nil
	}
	return Command{}, fmt.Errorf("%w: %s", ErrMalformed, kind)
}

func prefixKind(text string) (Kind, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	word := text[1:]
	if i := strings.IndexAny(word, " \t"); i >= 0 {
		word = word[:i]
	}
	switch Kind(word) {
	case KindMessage, KindReply, KindColor, KindAuthor, KindArchive, KindPin, KindAck:
		return Kind(word), true
	default:
		return "", false
	}
}
