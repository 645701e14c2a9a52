package paddle

import (
	"errors"
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// midiPort adapts a gomidi input port to NoteSource. A MIDI driver must be
// registered by the binary (blank import of a gomidi driver package).
type midiPort struct {
	in drivers.In
}

// OpenMIDI finds the first MIDI input whose name contains substr
// (case-insensitive) and opens it. An empty substr matches any input.
func OpenMIDI(substr string) (NoteSource, error) {
	want := strings.ToLower(strings.TrimSpace(substr))
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
		if !strings.Contains(strings.ToLower(in.String()), want) {
			continue
		}
		if err := in.Open(); err != nil {
			return nil, fmt.Errorf("open midi input %q: %w", in.String(), err)
		}
		return &midiPort{in: in}, nil
	}
	if len(names) == 0 {
		return nil, errors.New("no midi inputs found")
	}
	return nil, fmt.Errorf("no midi input matches %q (available: %s)", substr, strings.Join(names, ", "))
}

// ListMIDIInputs returns the names of the available MIDI inputs.
func ListMIDIInputs() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

func (p *midiPort) String() string { return p.in.String() }

// Listen maps note-on (velocity > 0) to pressed and note-off or
// zero-velocity note-on to released.
func (p *midiPort) Listen(fn func(note uint8, on bool)) (func(), error) {
	return midi.ListenTo(p.in, func(msg midi.Message, _ int32) {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			fn(key, true)
		case msg.GetNoteEnd(&ch, &key):
			fn(key, false)
		}
	})
}

func (p *midiPort) Close() error {
	return p.in.Close()
}
