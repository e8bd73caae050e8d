package provision

// Stream names the child output pipe a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// OutputLine is one line of child output, forwarded as soon as it is read.
type OutputLine struct {
	Stream Stream `json:"stream"`
	Text   string `json:"text"`
	Job    string `json:"job,omitempty"`
}

// Display renders the line the way it is shown to users and written to job
// logs: stderr lines carry an "[ERROR] " prefix.
func (l OutputLine) Display() string {
	if l.Stream == StreamStderr {
		return "[ERROR] " + l.Text
	}
	return l.Text
}

// Observer receives output lines. OnLine is called from the two stream
// readers concurrently and must not block for long.
type Observer interface {
	OnLine(OutputLine)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(OutputLine)

func (f ObserverFunc) OnLine(l OutputLine) { f(l) }

type discard struct{}

func (discard) OnLine(OutputLine) {}

// Observers fans a line out to every observer in order.
type Observers []Observer

func (o Observers) OnLine(l OutputLine) {
	for _, ob := range o {
		ob.OnLine(l)
	}
}
