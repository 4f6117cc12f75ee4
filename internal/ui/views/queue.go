package views

import (
	"github.com/jscyril/supersonic/api"
)

// QueueView shows the play queue with the current track marked
type QueueView struct {
	TrackPane
}

func NewQueueView(width, height int) QueueView {
	pane := NewTrackPane("Queue", width, height)
	pane.TrackList.Empty = "Queue is empty"
	return QueueView{TrackPane: pane}
}

func (v *QueueView) SetQueue(tracks []api.Track, currentID string) {
	v.SetTracks(tracks, currentID)
}

func (v QueueView) View() string {
	return v.TrackPane.View("")
}
