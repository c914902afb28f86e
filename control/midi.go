package control

import (
	"gitlab.com/gomidi/midi/v2"

	wasmaudio "github.com/wippyai/wasm-audio"
)

// ccModWheel is the modulation wheel MSB controller number.
const ccModWheel = 1

// FromMIDI decodes a channel voice message into an event. Note-on with zero
// velocity is a note-off. Messages with no event equivalent return false.
func FromMIDI(msg midi.Message) (wasmaudio.Event, bool) {
	var ch, key, vel, cc, val uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return wasmaudio.Event{Kind: wasmaudio.EventNoteOn, Note: key, Velocity: vel}, true
	case msg.GetNoteEnd(&ch, &key):
		return wasmaudio.Event{Kind: wasmaudio.EventNoteOff, Note: key}, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return wasmaudio.Event{Kind: wasmaudio.EventPitchBend, Value: int32(rel)}, true
	case msg.GetControlChange(&ch, &cc, &val) && cc == ccModWheel:
		return wasmaudio.Event{Kind: wasmaudio.EventModWheel, Value: int32(val)}, true
	}
	return wasmaudio.Event{}, false
}

// ToMIDI encodes an event as a channel voice message on channel ch.
func ToMIDI(ch uint8, ev wasmaudio.Event) (midi.Message, bool) {
	switch ev.Kind {
	case wasmaudio.EventNoteOn:
		return midi.NoteOn(ch, ev.Note, ev.Velocity), true
	case wasmaudio.EventNoteOff:
		return midi.NoteOff(ch, ev.Note), true
	case wasmaudio.EventPitchBend:
		return midi.Pitchbend(ch, int16(ev.Value)), true
	case wasmaudio.EventModWheel:
		return midi.ControlChange(ch, ccModWheel, uint8(ev.Value)), true
	}
	return nil, false
}
