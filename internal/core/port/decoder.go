package port

type Decoder interface {
	// Lines is closed when the decoder output reaches end of stream.
	Lines() <-chan string
	// Done is closed once the decoder process has been reaped.
	Done() <-chan struct{}
	ExitCode() (code int, exited bool)
	TerminateAll()
}
