package session

import (
	"perio-go/internal/chart"
	"perio-go/internal/voice"
)

// State is a read-only view of a session for rendering.
type State struct {
	Scheme         chart.Scheme     `json:"scheme"`
	Phase          chart.Phase      `json:"phase,omitempty"`
	Cursor         chart.Position   `json:"cursor"`
	CursorKey      string           `json:"cursorKey"`
	EntryMode      EntryMode        `json:"entryMode"`
	VoiceMode      voice.Mode       `json:"voiceMode"`
	VoiceAvailable bool             `json:"voiceAvailable"`
	Recording      bool             `json:"recording"`
	LiveText       string           `json:"liveText,omitempty"`
	Advisory       *voice.Advisory  `json:"advisory,omitempty"`
	LastVoice      *voice.Result    `json:"lastVoice,omitempty"`
	Notices        []Notice         `json:"notices"`
	Closed         bool             `json:"closed"`
	Record         chart.ExamRecord `json:"record"`
}

func (c *Controller) State() State {
	return State{
		Scheme:         c.scheme,
		Phase:          c.phase,
		Cursor:         c.cursor.Position(),
		CursorKey:      c.cursor.Key().String(),
		EntryMode:      c.mode,
		VoiceMode:      c.adapter.Mode(),
		VoiceAvailable: c.recording.Available(),
		Recording:      c.recording.Recording(),
		LiveText:       c.adapter.LiveText(),
		Advisory:       c.adapter.Advisory(),
		LastVoice:      c.lastVoice,
		Notices:        c.Notices(),
		Closed:         c.closed,
		Record:         c.Record(),
	}
}
