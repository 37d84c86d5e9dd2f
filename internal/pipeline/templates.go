package pipeline

import (
	"strconv"
	"strings"

	"arena-agent/internal/action"
)

// literalAction matches common motion phrasings without a model call. It
// covers "turn left", "rotate right 45", "look up", "move forward two" style
// instructions and nothing else; anything it cannot decide goes to the NLU.
func literalAction(text string) (action.Type, action.Payload, bool) {
	fields := strings.Fields(normalize(text))
	if len(fields) < 2 {
		return "", nil, false
	}
	verb, rest := fields[0], fields[1:]

	var typ action.Type
	switch verb {
	case "turn", "rotate", "spin":
		typ = action.TypeRotate
	case "look":
		typ = action.TypeLook
	case "move", "go", "walk", "step":
		typ = action.TypeMove
	default:
		return "", nil, false
	}

	dir, ok := directions[rest[0]]
	if !ok {
		return "", nil, false
	}
	// "go left" is a rotation in disguise; "look around" is still a look.
	if typ == action.TypeMove && (dir == action.DirLeft || dir == action.DirRight || dir == action.DirAround) {
		typ = action.TypeRotate
	}
	if typ == action.TypeRotate && (dir == action.DirForward || dir == action.DirBackward) {
		return "", nil, false
	}

	mag := defaultMagnitude(typ, dir)
	if len(rest) > 1 {
		v, ok := parseMagnitude(rest[1])
		if !ok {
			return "", nil, false
		}
		mag = v
	}
	return typ, action.MotionPayload{Direction: dir, Magnitude: mag}, true
}

var directions = map[string]string{
	"left":      action.DirLeft,
	"right":     action.DirRight,
	"around":    action.DirAround,
	"forward":   action.DirForward,
	"forwards":  action.DirForward,
	"ahead":     action.DirForward,
	"straight":  action.DirForward,
	"backward":  action.DirBackward,
	"backwards": action.DirBackward,
	"back":      action.DirBackward,
	"up":        action.DirUp,
	"down":      action.DirDown,
}

func defaultMagnitude(t action.Type, dir string) float64 {
	if t == action.TypeMove {
		return 1
	}
	if dir == action.DirAround {
		return 360
	}
	return action.DefaultRotateMagnitude
}

var numberWords = map[string]float64{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"once": 1, "twice": 2,
}

func parseMagnitude(word string) (float64, bool) {
	if v, ok := numberWords[word]; ok {
		return v, true
	}
	v, err := strconv.ParseFloat(word, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// normalize lowercases and strips filler so template matching sees a bare
// verb phrase.
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.Trim(text, ".!?,")
	for _, filler := range []string{"please ", "can you ", "could you ", "robot "} {
		text = strings.TrimPrefix(text, filler)
	}
	return text
}

// isObjectQuestion flags world-knowledge questions about objects rather than
// commands. Kept deliberately narrow; commands phrased as questions ("can you
// turn left?") are stripped by normalize before this runs.
func isObjectQuestion(text string) bool {
	t := normalize(text)
	for _, prefix := range []string{"what ", "where ", "which ", "how many ", "is there ", "are there ", "do you see "} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// mentionedRoom reports a room named in the text other than the current one.
func mentionedRoom(text, current string, rooms []string) (string, bool) {
	t := normalize(text)
	for _, r := range rooms {
		if r == current {
			continue
		}
		if strings.Contains(t, strings.ToLower(r)) {
			return r, true
		}
	}
	return "", false
}
