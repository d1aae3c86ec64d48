package protocol

import (
	"fmt"
	"strings"
)

// Encode renders cmd in the current wire arity.
func Encode(cmd Command) (string, error) {
	if err := validateHeader(cmd); err != nil {
		return "", err
	}

	var out string
	switch cmd.Kind {
	case KindMessage:
		out = fmt.Sprintf("/msg [%s,%s,%s]%s", cmd.MsgID, cmd.ColorID, cmd.AuthorKey, cmd.Body)
	case KindReply:
		out = fmt.Sprintf("/reply <%s,%s,%s>[%s]%s", cmd.MsgID, cmd.ColorID, cmd.AuthorKey, cmd.ParentID, cmd.Body)
	case KindColor:
		out = fmt.Sprintf("/color [%s]%s,%s", cmd.MsgID, cmd.AuthorKey, cmd.ColorID)
	case KindAuthor:
		out = fmt.Sprintf("/author [%s]%s", cmd.MsgID, cmd.AuthorKey)
	case KindArchive:
		out = fmt.Sprintf("/archive [%s]%s", cmd.MsgID, cmd.AuthorKey)
	case KindPin:
		out = fmt.Sprintf("/pin [%s]%s", cmd.MsgID, cmd.AuthorKey)
	case KindAck:
		out = "/ack " + cmd.MsgID
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}

	if len(out) > MaxPayloadBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(out))
	}
	return out, nil
}

// headerReserved are the delimiters a header field must not contain.
const headerReserved = ",[]<> \t\r\n"

func validateHeader(cmd Command) error {
	if strings.TrimSpace(cmd.MsgID) == "" {
		return ErrMissingID
	}
	if err := checkField("id", cmd.MsgID); err != nil {
		return err
	}
	if cmd.Kind == KindAck {
		return nil
	}
	if err := checkField("author", cmd.AuthorKey); err != nil {
		return err
	}
	switch cmd.Kind {
	case KindReply:
		if strings.TrimSpace(cmd.ParentID) == "" {
			return fmt.Errorf("%w: reply without parent", ErrMissingID)
		}
		if err := checkField("parent", cmd.ParentID); err != nil {
			return err
		}
		fallthrough
	case KindMessage, KindColor:
		if _, ok := cmd.ColorIndex(); !ok {
			return fmt.Errorf("%w: color=%q", ErrInvalidField, cmd.ColorID)
		}
	}
	return nil
}

func checkField(name, v string) error {
	if strings.ContainsAny(v, headerReserved) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidField, name, v)
	}
	return nil
}
