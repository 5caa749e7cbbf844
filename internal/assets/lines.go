package assets

// LineID names a narrator line.
type LineID string

const (
	LineHello   LineID = "hello"
	LineWaiting LineID = "waiting"
	LineWin     LineID = "win"
	LineLose    LineID = "lose"
)

// LineMeta is the presentation and audio of a narrator line.
type LineMeta struct {
	ID    LineID
	Image string
	Audio string
	Alt   string
}

// ImagePath returns the manifest path of the line's image.
func (m LineMeta) ImagePath() string {
	return "assets/images/goblin/" + m.Image + ".png"
}

// AudioPath returns the manifest path of the line's audio.
func (m LineMeta) AudioPath() string {
	return "assets/audio/goblin/" + m.Audio + ".mp3"
}

var lines = map[LineID]LineMeta{
	LineHello:   {ID: LineHello, Image: "hello", Audio: "hello", Alt: "Goblin waves hello"},
	LineWaiting: {ID: LineWaiting, Image: "waiting", Audio: "waiting", Alt: "Goblin waits impatiently"},
	LineWin:     {ID: LineWin, Image: "win", Audio: "win", Alt: "Goblin celebrates the mishap"},
	LineLose:    {ID: LineLose, Image: "lose", Audio: "lose", Alt: "Goblin sighs at the success"},
}

// Line looks up a narrator line.
func Line(id LineID) (LineMeta, bool) {
	m, ok := lines[id]
	return m, ok
}

// LineIDs returns all narrator line identifiers in a stable order.
func LineIDs() []LineID {
	return []LineID{LineHello, LineWaiting, LineWin, LineLose}
}
