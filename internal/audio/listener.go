package audio

// TrackInfo summarizes a freshly selected file. Positions are in expanded units.
type TrackInfo struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Total      int64  `json:"total"`
	LoopStart  int64  `json:"loopStart"`
	LoopLength int64  `json:"loopLength"`
	LoopEnd    int64  `json:"loopEnd"`
	HasLoop    bool   `json:"hasLoop"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Listener receives playback events. Methods may be called from the engine worker
// goroutine as well as from the caller of a control method, so implementations must be
// safe for concurrent use.
type Listener interface {
	OnTrackLoaded(info TrackInfo)
	OnPlayStateChanged()
	OnPauseStateChanged()
	OnProgress(position int64)
	OnLoop(resetPosition int64)
	OnComplete()
	OnError(err error)
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	TrackLoaded       func(info TrackInfo)
	PlayStateChanged  func()
	PauseStateChanged func()
	Progress          func(position int64)
	Loop              func(resetPosition int64)
	Complete          func()
	Error             func(err error)
}

func (l ListenerFuncs) OnTrackLoaded(info TrackInfo) {
	if l.TrackLoaded != nil {
		l.TrackLoaded(info)
	}
}

func (l ListenerFuncs) OnPlayStateChanged() {
	if l.PlayStateChanged != nil {
		l.PlayStateChanged()
	}
}

func (l ListenerFuncs) OnPauseStateChanged() {
	if l.PauseStateChanged != nil {
		l.PauseStateChanged()
	}
}

func (l ListenerFuncs) OnProgress(position int64) {
	if l.Progress != nil {
		l.Progress(position)
	}
}

func (l ListenerFuncs) OnLoop(resetPosition int64) {
	if l.Loop != nil {
		l.Loop(resetPosition)
	}
}

func (l ListenerFuncs) OnComplete() {
	if l.Complete != nil {
		l.Complete()
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

// MultiListener fans every event out to each listener in order
type MultiListener []Listener

func (m MultiListener) OnTrackLoaded(info TrackInfo) {
	for _, l := range m {
		l.OnTrackLoaded(info)
	}
}

func (m MultiListener) OnPlayStateChanged() {
	for _, l := range m {
		l.OnPlayStateChanged()
	}
}

func (m MultiListener) OnPauseStateChanged() {
	for _, l := range m {
		l.OnPauseStateChanged()
	}
}

func (m MultiListener) OnProgress(position int64) {
	for _, l := range m {
		l.OnProgress(position)
	}
}

func (m MultiListener) OnLoop(resetPosition int64) {
	for _, l := range m {
		l.OnLoop(resetPosition)
	}
}

func (m MultiListener) OnComplete() {
	for _, l := range m {
		l.OnComplete()
	}
}

func (m MultiListener) OnError(err error) {
	for _, l := range m {
		l.OnError(err)
	}
}
