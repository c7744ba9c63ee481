package analysis

// Utterances follows a cumulative transcript stream. A recognizer either
// extends or revises its current text, or, once a result is final, starts
// the next utterance from scratch. Re-delivering the final text unchanged
// is a continuation, not a new utterance.
type Utterances struct {
	final []string
}

// Advance reports whether tokens begin a new utterance, which closes the
// previous final one.
func (u *Utterances) Advance(tokens []string, final bool) bool {
	restarted := u.final != nil && !hasPrefix(tokens, u.final)
	switch {
	case final && len(tokens) > 0:
		u.final = append([]string(nil), tokens...)
	case restarted:
		u.final = nil
	}
	return restarted
}

func (u *Utterances) Reset() {
	u.final = nil
}

func hasPrefix(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i, t := range prefix {
		if tokens[i] != t {
			return false
		}
	}
	return true
}
